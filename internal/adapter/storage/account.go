package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/djibys/mini-bank/internal/core/domain"
)

const uniqueViolation = "23505"

const accountColumns = `numero_compte, user_id, type_compte, solde::text,
	COALESCE(numero_compte_agent, ''), COALESCE(numero_compte_distributeur, ''),
	is_active, derniere_transaction, date_creation`

// AccountRepository is the durable account store. Balance mutations go
// through AdjustBalance, which applies the non-negativity check and the
// write in one conditional UPDATE so concurrent withdrawals serialize
// on the row instead of racing a read-then-write.
type AccountRepository struct {
	db      *pgxpool.Pool
	numbers *domain.NumberGenerator
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db, numbers: domain.NewNumberGenerator()}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc   domain.Account
		solde string
	)
	err := row.Scan(&acc.NumeroCompte, &acc.UserID, &acc.TypeCompte, &solde,
		&acc.NumeroCompteAgent, &acc.NumeroCompteDistributeur,
		&acc.IsActive, &acc.DerniereTransaction, &acc.DateCreation)
	if err != nil {
		return nil, err
	}
	acc.Solde, err = decimal.NewFromString(solde)
	if err != nil {
		return nil, fmt.Errorf("parse solde %q: %w", solde, err)
	}
	return &acc, nil
}

// Create opens an account with a zero balance. Fails with ErrConflict
// when one already exists for the (user, kind) pair.
func (r *AccountRepository) Create(ctx context.Context, userID uuid.UUID, kind domain.AccountKind, numeroAgent, numeroDistributeur string) (*domain.Account, error) {
	query := `
		INSERT INTO comptes (numero_compte, user_id, type_compte, solde, numero_compte_agent, numero_compte_distributeur)
		VALUES ($1, $2, $3, 0, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING ` + accountColumns
	acc, err := scanAccount(r.db.QueryRow(ctx, query,
		r.numbers.AccountNumber(), userID, kind, numeroAgent, numeroDistributeur))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("%w: création compte: %v", domain.ErrStorage, err)
	}
	return acc, nil
}

// Ensure returns the (user, kind) account, creating it when absent.
// Idempotent: concurrent callers converge on the same account.
func (r *AccountRepository) Ensure(ctx context.Context, userID uuid.UUID, kind domain.AccountKind, numeroAgent, numeroDistributeur string) (*domain.Account, error) {
	acc, err := r.FindByOwnerAndKind(ctx, userID, kind)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}
	acc, err = r.Create(ctx, userID, kind, numeroAgent, numeroDistributeur)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race to another caller; theirs is ours.
		return r.FindByOwnerAndKind(ctx, userID, kind)
	}
	return acc, err
}

func (r *AccountRepository) FindByNumber(ctx context.Context, numero string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM comptes WHERE numero_compte = $1`
	acc, err := scanAccount(r.db.QueryRow(ctx, query, numero))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lecture compte: %v", domain.ErrStorage, err)
	}
	return acc, nil
}

func (r *AccountRepository) FindByOwnerAndKind(ctx context.Context, userID uuid.UUID, kind domain.AccountKind) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM comptes WHERE user_id = $1 AND type_compte = $2`
	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lecture compte: %v", domain.ErrStorage, err)
	}
	return acc, nil
}

// List returns accounts, newest first, optionally filtered by kind
// and/or owner.
func (r *AccountRepository) List(ctx context.Context, kind domain.AccountKind, userID *uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM comptes WHERE ($1 = '' OR type_compte = $1) AND ($2::uuid IS NULL OR user_id = $2) ORDER BY date_creation DESC`
	rows, err := r.db.Query(ctx, query, string(kind), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: liste comptes: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: liste comptes: %v", domain.ErrStorage, err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// AdjustBalance applies solde += delta atomically. The WHERE clause
// carries the non-negativity check, so no concurrent operation can
// observe a stale balance between check and write.
func (r *AccountRepository) AdjustBalance(ctx context.Context, numero string, delta decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE comptes
		SET solde = solde + $2, derniere_transaction = now()
		WHERE numero_compte = $1 AND solde + $2 >= 0
		RETURNING ` + accountColumns
	acc, err := scanAccount(r.db.QueryRow(ctx, query, numero, delta.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the account is unknown or the movement would overdraw it.
		var exists bool
		if qerr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM comptes WHERE numero_compte = $1)`, numero).Scan(&exists); qerr != nil {
			return nil, fmt.Errorf("%w: ajustement solde: %v", domain.ErrStorage, qerr)
		}
		if !exists {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ajustement solde: %v", domain.ErrStorage, err)
	}
	return acc, nil
}

// Deactivate soft-disables an account; records are never deleted.
func (r *AccountRepository) Deactivate(ctx context.Context, numero string) error {
	tag, err := r.db.Exec(ctx, `UPDATE comptes SET is_active = false WHERE numero_compte = $1`, numero)
	if err != nil {
		return fmt.Errorf("%w: désactivation compte: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
