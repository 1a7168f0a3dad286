package domain

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// suffixPool tracks the random suffixes already issued during the
// current millisecond so a repeat can be redrawn.
type suffixPool struct {
	lastMs int64
	issued map[int]struct{}
}

func (p *suffixPool) draw(ms int64, max int, randN func(int) int) int {
	if ms != p.lastMs {
		p.lastMs = ms
		p.issued = make(map[int]struct{})
	}
	suffix := randN(max)
	for {
		if _, taken := p.issued[suffix]; !taken {
			break
		}
		suffix = (suffix + 1) % max
	}
	p.issued[suffix] = struct{}{}
	return suffix
}

// NumberGenerator issues account and transaction numbers in the
// ACC<ms-timestamp><3-digit> / TX<ms-timestamp><4-digit> format. The
// timestamp alone leaves a collision window when two numbers are issued
// within the same millisecond, so issued suffixes are remembered per
// timestamp and redrawn on a repeat: two numbers issued by the same
// process never collide.
type NumberGenerator struct {
	mu       sync.Mutex
	accounts suffixPool
	txs      suffixPool
	now      func() time.Time
	randN    func(n int) int
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{
		now:   time.Now,
		randN: rand.Intn,
	}
}

// TransactionNumber returns a fresh TX number, assigned before the
// record is durably stored and never reassigned.
func (g *NumberGenerator) TransactionNumber() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	return fmt.Sprintf("TX%d%04d", ms, g.txs.draw(ms, 10000, g.randN))
}

// AccountNumber returns a fresh ACC number.
func (g *NumberGenerator) AccountNumber() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	return fmt.Sprintf("ACC%d%03d", ms, g.accounts.draw(ms, 1000, g.randN))
}
