package ledger_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djibys/mini-bank/internal/core/domain"
	"github.com/djibys/mini-bank/internal/core/ledger"
)

// =============================================================================
// IN-MEMORY FAKES
// =============================================================================

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*domain.Account{}}
}

func (m *memAccounts) add(numero string, solde string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[numero] = &domain.Account{
		NumeroCompte: numero,
		TypeCompte:   domain.KindClient,
		Solde:        mustDec(solde),
		IsActive:     true,
		DateCreation: time.Now(),
	}
}

func (m *memAccounts) balance(t *testing.T, numero string) decimal.Decimal {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[numero]
	require.True(t, ok, "account %s should exist", numero)
	return acc.Solde
}

func (m *memAccounts) FindByNumber(_ context.Context, numero string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[numero]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *acc
	return &clone, nil
}

// AdjustBalance holds the lock across check and write, mirroring the
// single conditional UPDATE of the real store.
func (m *memAccounts) AdjustBalance(_ context.Context, numero string, delta decimal.Decimal) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[numero]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	next := acc.Solde.Add(delta)
	if next.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	acc.Solde = next
	now := time.Now()
	acc.DerniereTransaction = &now
	clone := *acc
	return &clone, nil
}

type memTxs struct {
	mu        sync.Mutex
	txs       map[string]*domain.Transaction
	insertErr error
}

func newMemTxs() *memTxs {
	return &memTxs{txs: map[string]*domain.Transaction{}}
}

func (m *memTxs) Insert(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	clone := *tx
	m.txs[tx.NumeroTransaction] = &clone
	return nil
}

func (m *memTxs) FindByNumber(_ context.Context, numero string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[numero]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

func (m *memTxs) MarkCancelled(_ context.Context, numero, description string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[numero]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if tx.Statut != domain.StatusValidee {
		return nil, domain.ErrInvalidState
	}
	tx.Statut = domain.StatusAnnulee
	tx.Description = description
	clone := *tx
	return &clone, nil
}

func (m *memTxs) List(_ context.Context, f ledger.Filter, page, pageSize int) ([]domain.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Transaction
	for _, tx := range m.txs {
		if f.Type != "" && tx.TypeTransaction != f.Type {
			continue
		}
		if f.CompteSource != "" && tx.CompteSource != f.CompteSource {
			continue
		}
		if f.Statut != "" && tx.Statut != f.Statut {
			continue
		}
		matched = append(matched, *tx)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DateTransaction.After(matched[j].DateTransaction)
	})
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memTxs) AggregateStats(_ context.Context, asOf time.Time) (*domain.TransactionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	midnight := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	stats := &domain.TransactionStats{VolumeToday: decimal.Zero, VolumeTotal: decimal.Zero}
	byType := map[domain.TransactionKind]*domain.TypeStat{}
	for _, tx := range m.txs {
		if tx.Statut != domain.StatusValidee || tx.DateTransaction.After(asOf) {
			continue
		}
		stats.TotalTransactions++
		stats.VolumeTotal = stats.VolumeTotal.Add(tx.Montant)
		if !tx.DateTransaction.Before(midnight) {
			stats.TransactionsToday++
			stats.VolumeToday = stats.VolumeToday.Add(tx.Montant)
		}
		ts, ok := byType[tx.TypeTransaction]
		if !ok {
			ts = &domain.TypeStat{Type: tx.TypeTransaction, Volume: decimal.Zero}
			byType[tx.TypeTransaction] = ts
		}
		ts.Count++
		ts.Volume = ts.Volume.Add(tx.Montant)
	}
	for _, ts := range byType {
		stats.ByType = append(stats.ByType, *ts)
	}
	return stats, nil
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(t *testing.T) (*ledger.Engine, *memAccounts, *memTxs) {
	t.Helper()
	accounts := newMemAccounts()
	txs := newMemTxs()
	return ledger.New(accounts, txs), accounts, txs
}

func post(t *testing.T, e *ledger.Engine, req ledger.PostingRequest) *domain.Transaction {
	t.Helper()
	tx, err := e.Post(context.Background(), req)
	require.NoError(t, err)
	return tx
}

// =============================================================================
// POSTING
// =============================================================================

func TestPost_Depot(t *testing.T) {
	// Account at 1000, DEPOT of 500: balance 1500, VALIDEE, commission 12.5.
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("500"), CompteSource: "ACC1",
	})

	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1500")))
	assert.Equal(t, domain.StatusValidee, tx.Statut)
	assert.True(t, tx.Commission.Equal(mustDec("12.5")), "commission = %s", tx.Commission)
	assert.NotEmpty(t, tx.NumeroTransaction)
	assert.NotEmpty(t, tx.HeureTransaction)
}

func TestPost_RetraitInsufficientFunds(t *testing.T) {
	// Withdrawal over the balance is rejected without any side effect.
	engine, accounts, txs := newTestEngine(t)
	accounts.add("ACC1", "1000")

	_, err := engine.Post(context.Background(), ledger.PostingRequest{
		Type: domain.Retrait, Montant: mustDec("1500"), CompteSource: "ACC1",
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")))
	assert.Empty(t, txs.txs, "no record should be written")
}

func TestPost_RetraitWithCommissionSplit(t *testing.T) {
	// RETRAIT of 200 on 1000 with agent and distributor at 0:
	// source 800, commission 5, agent 2.0, distributor 3.0.
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")
	accounts.add("AG1", "0")
	accounts.add("DI1", "0")

	tx := post(t, engine, ledger.PostingRequest{
		Type:                     domain.Retrait,
		Montant:                  mustDec("200"),
		CompteSource:             "ACC1",
		NumeroCompteAgent:        "AG1",
		NumeroCompteDistributeur: "DI1",
	})

	assert.True(t, tx.Commission.Equal(mustDec("5")))
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("800")))
	assert.True(t, accounts.balance(t, "AG1").Equal(mustDec("2")))
	assert.True(t, accounts.balance(t, "DI1").Equal(mustDec("3")))
}

func TestPost_UnresolvableCommissionAccountsSkipped(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("100"), CompteSource: "ACC1",
		NumeroCompteAgent: "GHOST", NumeroCompteDistributeur: "GHOST2",
	})

	// Posting succeeds, commission recorded, credits silently skipped.
	assert.True(t, tx.Commission.Equal(mustDec("2.5")))
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1100")))
}

func TestPost_ValidationFailures(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	cases := []struct {
		name string
		req  ledger.PostingRequest
		want error
	}{
		{"zero amount", ledger.PostingRequest{Type: domain.Depot, Montant: decimal.Zero, CompteSource: "ACC1"}, domain.ErrInvalidAmount},
		{"negative amount", ledger.PostingRequest{Type: domain.Depot, Montant: mustDec("-5"), CompteSource: "ACC1"}, domain.ErrInvalidAmount},
		{"unknown source", ledger.PostingRequest{Type: domain.Depot, Montant: mustDec("5"), CompteSource: "NOPE"}, domain.ErrAccountNotFound},
		{"transfert not postable", ledger.PostingRequest{Type: domain.Transfert, Montant: mustDec("5"), CompteSource: "ACC1"}, domain.ErrInvalidKind},
		{"unknown kind", ledger.PostingRequest{Type: "VIREMENT", Montant: mustDec("5"), CompteSource: "ACC1"}, domain.ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Post(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")), "no mutation on rejection")
		})
	}
}

func TestPost_RecordWriteFailureCompensatesBalance(t *testing.T) {
	// If the record of truth cannot be written, the already-applied
	// principal movement is rolled back.
	engine, accounts, txs := newTestEngine(t)
	accounts.add("ACC1", "1000")
	txs.insertErr = errors.New("disk on fire")

	_, err := engine.Post(context.Background(), ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("500"), CompteSource: "ACC1",
	})

	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")))
}

func TestPost_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	// Two concurrent RETRAIT of 600 against a 1000 balance: exactly one
	// succeeds and the final balance is 400, never negative.
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := engine.Post(context.Background(), ledger.PostingRequest{
				Type: domain.Retrait, Montant: mustDec("600"), CompteSource: "ACC1",
			})
			results <- err
		}()
	}

	var failures, successes int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		} else {
			successes++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("400")),
		"final balance = %s", accounts.balance(t, "ACC1"))
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestCancel_DepotRoundTrip(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("500"), CompteSource: "ACC1",
	})
	require.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1500")))

	cancelled, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "test")
	require.NoError(t, err)

	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")), "balance restored exactly")
	assert.Equal(t, domain.StatusAnnulee, cancelled.Statut)
	assert.Contains(t, cancelled.Description, "Annulée: test")
}

func TestCancel_RetraitRoundTrip(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Retrait, Montant: mustDec("300"), CompteSource: "ACC1",
	})
	require.True(t, accounts.balance(t, "ACC1").Equal(mustDec("700")))

	_, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "erreur de saisie")
	require.NoError(t, err)
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")))
}

func TestCancel_AlreadyCancelledIsTerminal(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("500"), CompteSource: "ACC1",
	})
	_, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "test")
	require.NoError(t, err)

	// Second attempt: rejected, no balance change.
	_, err = engine.Cancel(context.Background(), tx.NumeroTransaction, "encore")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")))
}

func TestCancel_MissingReason(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("100"), CompteSource: "ACC1",
	})
	cancelled, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "")
	require.NoError(t, err)
	assert.Contains(t, cancelled.Description, "Annulée: Non spécifiée")
}

func TestCancel_UnknownTransaction(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Cancel(context.Background(), "TX0000000000000000", "test")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestCancel_SourceAccountGoneStillMarksCancelled(t *testing.T) {
	// Balance compensation is skipped when the account no longer
	// resolves, but the record still flips to ANNULEE.
	engine, accounts, txs := newTestEngine(t)
	accounts.add("ACC1", "1000")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Depot, Montant: mustDec("500"), CompteSource: "ACC1",
	})

	accounts.mu.Lock()
	delete(accounts.accounts, "ACC1")
	accounts.mu.Unlock()

	cancelled, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "compte purgé")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnnulee, cancelled.Statut)

	stored, err := txs.FindByNumber(context.Background(), tx.NumeroTransaction)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnnulee, stored.Statut)
}

func TestCancel_DoesNotClawBackCommission(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000")
	accounts.add("AG1", "0")
	accounts.add("DI1", "0")

	tx := post(t, engine, ledger.PostingRequest{
		Type: domain.Retrait, Montant: mustDec("200"), CompteSource: "ACC1",
		NumeroCompteAgent: "AG1", NumeroCompteDistributeur: "DI1",
	})

	_, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "test")
	require.NoError(t, err)

	// Principal restored; commission payouts stay where they landed.
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("1000")))
	assert.True(t, accounts.balance(t, "AG1").Equal(mustDec("2")))
	assert.True(t, accounts.balance(t, "DI1").Equal(mustDec("3")))
}

// =============================================================================
// ADMIN OVERRIDE, LISTING, STATS
// =============================================================================

func TestAdjustDirect(t *testing.T) {
	engine, accounts, txs := newTestEngine(t)
	accounts.add("ACC1", "100")

	acc, err := engine.AdjustDirect(context.Background(), "ACC1", mustDec("50"), "CREDIT")
	require.NoError(t, err)
	assert.True(t, acc.Solde.Equal(mustDec("150")))

	acc, err = engine.AdjustDirect(context.Background(), "ACC1", mustDec("150"), "DEBIT")
	require.NoError(t, err)
	assert.True(t, acc.Solde.Equal(mustDec("0")))

	_, err = engine.AdjustDirect(context.Background(), "ACC1", mustDec("1"), "DEBIT")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = engine.AdjustDirect(context.Background(), "ACC1", mustDec("1"), "SAISIE")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = engine.AdjustDirect(context.Background(), "ACC1", decimal.Zero, "CREDIT")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// No transaction record for overrides.
	assert.Empty(t, txs.txs)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "10000")
	accounts.add("ACC2", "10000")

	for i := 0; i < 3; i++ {
		post(t, engine, ledger.PostingRequest{Type: domain.Depot, Montant: mustDec("10"), CompteSource: "ACC1"})
	}
	post(t, engine, ledger.PostingRequest{Type: domain.Retrait, Montant: mustDec("10"), CompteSource: "ACC2"})

	items, total, err := engine.List(context.Background(), ledger.Filter{CompteSource: "ACC1"}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2)

	items, total, err = engine.List(context.Background(), ledger.Filter{Type: domain.Retrait}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "ACC2", items[0].CompteSource)
}

func TestStats_OnlyValidee(t *testing.T) {
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "10000")

	post(t, engine, ledger.PostingRequest{Type: domain.Depot, Montant: mustDec("100"), CompteSource: "ACC1"})
	tx := post(t, engine, ledger.PostingRequest{Type: domain.Depot, Montant: mustDec("40"), CompteSource: "ACC1"})
	post(t, engine, ledger.PostingRequest{Type: domain.Retrait, Montant: mustDec("25"), CompteSource: "ACC1"})

	_, err := engine.Cancel(context.Background(), tx.NumeroTransaction, "test")
	require.NoError(t, err)

	stats, err := engine.Stats(context.Background(), time.Now())
	require.NoError(t, err)

	assert.EqualValues(t, 2, stats.TotalTransactions, "cancelled record excluded")
	assert.True(t, stats.VolumeTotal.Equal(mustDec("125")), "volume = %s", stats.VolumeTotal)
	assert.EqualValues(t, 2, stats.TransactionsToday)
	assert.True(t, stats.VolumeToday.Equal(mustDec("125")))
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestInvariant_BalanceNeverNegative(t *testing.T) {
	// Random-ish mix of postings and cancellations; balances must stay
	// non-negative throughout.
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "50")

	ops := []struct {
		kind    domain.TransactionKind
		montant string
	}{
		{domain.Retrait, "60"}, // rejected
		{domain.Depot, "20"},
		{domain.Retrait, "70"},
		{domain.Retrait, "10"}, // rejected, balance 0
		{domain.Depot, "5"},
	}
	for _, op := range ops {
		_, _ = engine.Post(context.Background(), ledger.PostingRequest{
			Type: op.kind, Montant: mustDec(op.montant), CompteSource: "ACC1",
		})
		assert.False(t, accounts.balance(t, "ACC1").IsNegative())
	}
	assert.True(t, accounts.balance(t, "ACC1").Equal(mustDec("5")))
}

func TestInvariant_CommissionArithmetic(t *testing.T) {
	// For every posted transaction: commission == round2(amount * 0.025)
	// and the 40/60 split sums exactly to the commission.
	engine, accounts, _ := newTestEngine(t)
	accounts.add("ACC1", "1000000")
	accounts.add("AG1", "0")
	accounts.add("DI1", "0")

	totalAgent, totalDist, totalCommission := decimal.Zero, decimal.Zero, decimal.Zero
	for _, montant := range []string{"500", "200", "0.03", "12.77", "999.99"} {
		tx := post(t, engine, ledger.PostingRequest{
			Type: domain.Depot, Montant: mustDec(montant), CompteSource: "ACC1",
			NumeroCompteAgent: "AG1", NumeroCompteDistributeur: "DI1",
		})
		expected := domain.Commission(mustDec(montant))
		assert.True(t, tx.Commission.Equal(expected))

		agent, dist := domain.SplitCommission(tx.Commission)
		totalAgent = totalAgent.Add(agent)
		totalDist = totalDist.Add(dist)
		totalCommission = totalCommission.Add(tx.Commission)
	}

	assert.True(t, accounts.balance(t, "AG1").Equal(totalAgent))
	assert.True(t, accounts.balance(t, "DI1").Equal(totalDist))
	assert.True(t, totalAgent.Add(totalDist).Equal(totalCommission))
}
