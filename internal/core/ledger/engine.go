// Package ledger implements the posting and reversal rules of the
// back-office: how a deposit or withdrawal mutates account balances,
// how commission is computed and split between the agent and the
// distributor, and how a posted transaction is compensated when an
// agent cancels it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/djibys/mini-bank/internal/core/domain"
)

// AccountStore is the durable keyed storage of accounts. AdjustBalance
// must apply the non-negativity check and the write as a single atomic
// unit per account: two concurrent withdrawals may never both pass the
// check against a stale balance.
type AccountStore interface {
	FindByNumber(ctx context.Context, numero string) (*domain.Account, error)
	AdjustBalance(ctx context.Context, numero string, delta decimal.Decimal) (*domain.Account, error)
}

// TransactionStore persists immutable transaction records.
// MarkCancelled must flip VALIDEE -> ANNULEE conditionally and report
// ErrInvalidState when the record is in any other status.
type TransactionStore interface {
	Insert(ctx context.Context, tx *domain.Transaction) error
	FindByNumber(ctx context.Context, numero string) (*domain.Transaction, error)
	MarkCancelled(ctx context.Context, numero, description string) (*domain.Transaction, error)
	List(ctx context.Context, f Filter, page, pageSize int) ([]domain.Transaction, int64, error)
	AggregateStats(ctx context.Context, asOf time.Time) (*domain.TransactionStats, error)
}

// Notifier is told about postings and cancellations after they are
// durable. Delivery is asynchronous and best-effort.
type Notifier interface {
	TransactionPosted(ctx context.Context, tx *domain.Transaction)
	TransactionCancelled(ctx context.Context, tx *domain.Transaction)
}

// PostingRequest is the parsed operation request handed in by the HTTP
// layer. Authorization is checked upstream.
type PostingRequest struct {
	Type                     domain.TransactionKind
	Montant                  decimal.Decimal
	CompteSource             string
	CompteDestination        string
	NumeroCompteAgent        string
	NumeroCompteDistributeur string
	Description              string
}

// Filter narrows a transaction listing. Zero values are ignored.
type Filter struct {
	Type         domain.TransactionKind
	CompteSource string
	Statut       domain.TransactionStatus
	DateDebut    *time.Time
	DateFin      *time.Time
}

// Engine validates and applies monetary operations. It is the only
// component allowed to mutate balances and transaction statuses.
type Engine struct {
	accounts AccountStore
	txs      TransactionStore
	numbers  *domain.NumberGenerator
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func New(accounts AccountStore, txs TransactionStore, opts ...Option) *Engine {
	e := &Engine{
		accounts: accounts,
		txs:      txs,
		numbers:  domain.NewNumberGenerator(),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Engine)

// WithNotifier attaches a webhook notifier for posted/cancelled events.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Post validates and applies a single DEPOT or RETRAIT, producing
// exactly one VALIDEE transaction record.
//
// Validation failures (invalid amount or kind, unknown source account,
// insufficient funds) leave all state untouched. Once the principal
// movement is applied, a failed record write triggers a compensating
// balance adjustment so no balance change survives without a record.
// Commission credits run after the record is durable and are
// best-effort: a failed credit is logged but does not fail the posting.
func (e *Engine) Post(ctx context.Context, req PostingRequest) (*domain.Transaction, error) {
	if req.Type != domain.Depot && req.Type != domain.Retrait {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKind, req.Type)
	}
	if !req.Montant.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	source, err := e.accounts.FindByNumber(ctx, req.CompteSource)
	if err != nil {
		return nil, err
	}

	montant := domain.Round2(req.Montant)
	commission := domain.Commission(montant)

	// Commission is not debited from the principal movement: it is
	// credited to the agent/distributor accounts out-of-band, exactly
	// as the back-office has always behaved.
	delta := montant
	if req.Type == domain.Retrait {
		delta = montant.Neg()
	}
	if _, err := e.accounts.AdjustBalance(ctx, source.NumeroCompte, delta); err != nil {
		return nil, err
	}

	now := e.now()
	tx := &domain.Transaction{
		NumeroTransaction:        e.numbers.TransactionNumber(),
		TypeTransaction:          req.Type,
		Montant:                  montant,
		CompteSource:             source.NumeroCompte,
		CompteDestination:        req.CompteDestination,
		NumeroCompteAgent:        req.NumeroCompteAgent,
		NumeroCompteDistributeur: req.NumeroCompteDistributeur,
		Commission:               commission,
		Statut:                   domain.StatusValidee,
		Description:              req.Description,
		DateTransaction:          now,
		HeureTransaction:         now.Format("15:04"),
	}

	if err := e.txs.Insert(ctx, tx); err != nil {
		// The balance moved but the record of truth did not make it:
		// put the balance back rather than leave the books silently off.
		if _, cerr := e.accounts.AdjustBalance(ctx, source.NumeroCompte, delta.Neg()); cerr != nil {
			e.log.Error("posting compensation failed, balance unaccounted for",
				"compte", source.NumeroCompte, "delta", delta.String(), "error", cerr)
		}
		return nil, fmt.Errorf("%w: insertion transaction: %v", domain.ErrStorage, err)
	}

	e.creditCommission(ctx, tx)

	if e.notifier != nil {
		e.notifier.TransactionPosted(ctx, tx)
	}
	return tx, nil
}

// creditCommission distributes the fee 40/60 to the agent and
// distributor accounts when they resolve. An unresolvable account is
// simply skipped; a storage failure is logged and swallowed.
func (e *Engine) creditCommission(ctx context.Context, tx *domain.Transaction) {
	agentShare, distShare := domain.SplitCommission(tx.Commission)
	credits := []struct {
		numero string
		share  decimal.Decimal
		role   string
	}{
		{tx.NumeroCompteAgent, agentShare, "agent"},
		{tx.NumeroCompteDistributeur, distShare, "distributeur"},
	}
	for _, c := range credits {
		if c.numero == "" || c.share.IsZero() {
			continue
		}
		if _, err := e.accounts.AdjustBalance(ctx, c.numero, c.share); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				continue
			}
			e.log.Error("commission credit failed",
				"transaction", tx.NumeroTransaction, "role", c.role,
				"compte", c.numero, "share", c.share.String(), "error", err)
		}
	}
}

// Cancel compensates a previously posted VALIDEE transaction and marks
// it ANNULEE. Only the principal movement is reversed; commission
// already paid out to the agent and distributor stays where it is.
func (e *Engine) Cancel(ctx context.Context, numeroTransaction, raison string) (*domain.Transaction, error) {
	tx, err := e.txs.FindByNumber(ctx, numeroTransaction)
	if err != nil {
		return nil, err
	}
	if tx.Statut != domain.StatusValidee {
		return nil, domain.ErrInvalidState
	}

	// Inverse principal movement. If the source account no longer
	// resolves we still mark the cancellation; the record is what the
	// agents act on.
	compensated := decimal.Zero
	switch tx.TypeTransaction {
	case domain.Depot:
		compensated = tx.Montant.Neg()
	case domain.Retrait:
		compensated = tx.Montant
	}
	if !compensated.IsZero() {
		if _, err := e.accounts.AdjustBalance(ctx, tx.CompteSource, compensated); err != nil {
			if !errors.Is(err, domain.ErrAccountNotFound) {
				return nil, err
			}
			e.log.Warn("cancellation without balance compensation, source account missing",
				"transaction", tx.NumeroTransaction, "compte", tx.CompteSource)
			compensated = decimal.Zero
		}
	}

	if raison == "" {
		raison = "Non spécifiée"
	}
	description := tx.Description + " | Annulée: " + raison

	cancelled, err := e.txs.MarkCancelled(ctx, tx.NumeroTransaction, description)
	if err != nil {
		// A concurrent cancel may have won the conditional update after
		// our status read. Undo our compensation so the balance is not
		// restored twice.
		if !compensated.IsZero() {
			if _, cerr := e.accounts.AdjustBalance(ctx, tx.CompteSource, compensated.Neg()); cerr != nil {
				e.log.Error("cancellation rollback failed, balance unaccounted for",
					"transaction", tx.NumeroTransaction, "compte", tx.CompteSource, "error", cerr)
			}
		}
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.TransactionCancelled(ctx, cancelled)
	}
	return cancelled, nil
}

// AdjustDirect is the administrative balance override: same validation
// as posting but no commission and no transaction record.
func (e *Engine) AdjustDirect(ctx context.Context, numeroCompte string, montant decimal.Decimal, operation string) (*domain.Account, error) {
	if !montant.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	var delta decimal.Decimal
	switch operation {
	case "CREDIT":
		delta = domain.Round2(montant)
	case "DEBIT":
		delta = domain.Round2(montant).Neg()
	default:
		return nil, fmt.Errorf("%w: opération %q", domain.ErrInvalidKind, operation)
	}
	return e.accounts.AdjustBalance(ctx, numeroCompte, delta)
}

// GetAccount resolves an account by number.
func (e *Engine) GetAccount(ctx context.Context, numeroCompte string) (*domain.Account, error) {
	return e.accounts.FindByNumber(ctx, numeroCompte)
}

// List returns one page of transaction records, newest first, plus the
// total match count.
func (e *Engine) List(ctx context.Context, f Filter, page, pageSize int) ([]domain.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return e.txs.List(ctx, f, page, pageSize)
}

// Stats aggregates VALIDEE transactions as of the given instant.
func (e *Engine) Stats(ctx context.Context, asOf time.Time) (*domain.TransactionStats, error) {
	return e.txs.AggregateStats(ctx, asOf)
}
