package domain

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenGenerator pins the clock to one millisecond and the random
// source to a constant, forcing the worst case: every draw collides.
func frozenGenerator(suffix int) *NumberGenerator {
	g := NewNumberGenerator()
	fixed := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }
	g.randN = func(int) int { return suffix }
	return g
}

func TestTransactionNumber_Format(t *testing.T) {
	g := NewNumberGenerator()
	numero := g.TransactionNumber()
	require.True(t, strings.HasPrefix(numero, "TX"))
	// ms timestamp (13 digits today) + 4-digit suffix
	assert.Len(t, numero, 2+13+4)
}

func TestAccountNumber_Format(t *testing.T) {
	g := NewNumberGenerator()
	numero := g.AccountNumber()
	require.True(t, strings.HasPrefix(numero, "ACC"))
	assert.Len(t, numero, 3+13+3)
}

func TestTransactionNumber_NoCollisionSameTimestamp(t *testing.T) {
	g := frozenGenerator(42)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		numero := g.TransactionNumber()
		_, dup := seen[numero]
		require.False(t, dup, "duplicate transaction number %s at draw %d", numero, i)
		seen[numero] = struct{}{}
	}
}

func TestTransactionNumber_NoCollisionConcurrent(t *testing.T) {
	g := frozenGenerator(7)

	const goroutines, perGoroutine = 8, 50
	var (
		mu   sync.Mutex
		all  = make(map[string]struct{})
		wg   sync.WaitGroup
		dups int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				numero := g.TransactionNumber()
				mu.Lock()
				if _, ok := all[numero]; ok {
					dups++
				}
				all[numero] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, dups, "no duplicates expected")
	assert.Len(t, all, goroutines*perGoroutine)
}

func TestNumberGenerator_SeparateSpaces(t *testing.T) {
	// Account and transaction numbers draw from independent suffix
	// pools; issuing one kind must not eat into the other's space.
	g := frozenGenerator(0)
	tx := g.TransactionNumber()
	acc := g.AccountNumber()
	assert.True(t, strings.HasSuffix(tx, "0000"))
	assert.True(t, strings.HasSuffix(acc, "000"))
}
