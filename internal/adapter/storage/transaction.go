package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/djibys/mini-bank/internal/core/domain"
	"github.com/djibys/mini-bank/internal/core/ledger"
)

const transactionColumns = `numero_transaction, type_transaction, montant::text,
	compte_source, COALESCE(compte_destination, ''),
	COALESCE(numero_compte_agent, ''), COALESCE(numero_compte_distributeur, ''),
	commission::text, statut, description, date_transaction, heure_transaction`

// TransactionRepository persists immutable transaction records. Rows
// are only ever inserted or flipped VALIDEE -> ANNULEE; nothing is
// deleted.
type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                  domain.Transaction
		montant, commission string
	)
	err := row.Scan(&tx.NumeroTransaction, &tx.TypeTransaction, &montant,
		&tx.CompteSource, &tx.CompteDestination,
		&tx.NumeroCompteAgent, &tx.NumeroCompteDistributeur,
		&commission, &tx.Statut, &tx.Description, &tx.DateTransaction, &tx.HeureTransaction)
	if err != nil {
		return nil, err
	}
	if tx.Montant, err = decimal.NewFromString(montant); err != nil {
		return nil, fmt.Errorf("parse montant %q: %w", montant, err)
	}
	if tx.Commission, err = decimal.NewFromString(commission); err != nil {
		return nil, fmt.Errorf("parse commission %q: %w", commission, err)
	}
	return &tx, nil
}

// Insert stores a record under its pre-assigned transaction number.
func (r *TransactionRepository) Insert(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (numero_transaction, type_transaction, montant,
			compte_source, compte_destination, numero_compte_agent, numero_compte_distributeur,
			commission, statut, description, date_transaction, heure_transaction)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		tx.NumeroTransaction, tx.TypeTransaction, tx.Montant.String(),
		tx.CompteSource, tx.CompteDestination, tx.NumeroCompteAgent, tx.NumeroCompteDistributeur,
		tx.Commission.String(), tx.Statut, tx.Description, tx.DateTransaction, tx.HeureTransaction)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: numéro de transaction déjà utilisé: %v", domain.ErrStorage, err)
		}
		return fmt.Errorf("%w: insertion transaction: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *TransactionRepository) FindByNumber(ctx context.Context, numero string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE numero_transaction = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, numero))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lecture transaction: %v", domain.ErrStorage, err)
	}
	return tx, nil
}

// MarkCancelled flips a VALIDEE record to ANNULEE with the annotated
// description. The status guard is part of the UPDATE, so of two
// concurrent cancellations exactly one wins; the loser gets
// ErrInvalidState.
func (r *TransactionRepository) MarkCancelled(ctx context.Context, numero, description string) (*domain.Transaction, error) {
	query := `
		UPDATE transactions
		SET statut = $3, description = $2
		WHERE numero_transaction = $1 AND statut = $4
		RETURNING ` + transactionColumns
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, numero, description, domain.StatusAnnulee, domain.StatusValidee))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, ferr := r.FindByNumber(ctx, numero); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("%w: annulation transaction: %v", domain.ErrStorage, err)
	}
	return tx, nil
}

// List returns one page sorted by transaction timestamp descending,
// plus the total count matching the filter.
func (r *TransactionRepository) List(ctx context.Context, f ledger.Filter, page, pageSize int) ([]domain.Transaction, int64, error) {
	where := ` WHERE ($1 = '' OR type_transaction = $1)
		AND ($2 = '' OR compte_source = $2)
		AND ($3 = '' OR statut = $3)
		AND ($4::timestamptz IS NULL OR date_transaction >= $4)
		AND ($5::timestamptz IS NULL OR date_transaction <= $5)`
	args := []any{string(f.Type), f.CompteSource, string(f.Statut), f.DateDebut, f.DateFin}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: comptage transactions: %v", domain.ErrStorage, err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		` ORDER BY date_transaction DESC LIMIT $6 OFFSET $7`
	rows, err := r.db.Query(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: liste transactions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var items []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: liste transactions: %v", domain.ErrStorage, err)
		}
		items = append(items, *tx)
	}
	return items, total, rows.Err()
}

// AggregateStats reports VALIDEE counts and volumes, total and for the
// calendar day of asOf (midnight in asOf's location).
func (r *TransactionRepository) AggregateStats(ctx context.Context, asOf time.Time) (*domain.TransactionStats, error) {
	midnight := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())

	stats := &domain.TransactionStats{
		VolumeToday: decimal.Zero,
		VolumeTotal: decimal.Zero,
	}

	var volumeToday, volumeTotal string
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE date_transaction >= $1),
			COALESCE(SUM(montant) FILTER (WHERE date_transaction >= $1), 0)::text,
			COUNT(*),
			COALESCE(SUM(montant), 0)::text
		FROM transactions WHERE statut = $2 AND date_transaction <= $3`,
		midnight, domain.StatusValidee, asOf).
		Scan(&stats.TransactionsToday, &volumeToday, &stats.TotalTransactions, &volumeTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: statistiques: %v", domain.ErrStorage, err)
	}
	if stats.VolumeToday, err = decimal.NewFromString(volumeToday); err != nil {
		return nil, fmt.Errorf("parse volume %q: %w", volumeToday, err)
	}
	if stats.VolumeTotal, err = decimal.NewFromString(volumeTotal); err != nil {
		return nil, fmt.Errorf("parse volume %q: %w", volumeTotal, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT type_transaction, COUNT(*), COALESCE(SUM(montant), 0)::text
		FROM transactions WHERE statut = $1 AND date_transaction <= $2
		GROUP BY type_transaction ORDER BY type_transaction`,
		domain.StatusValidee, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: statistiques par type: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts     domain.TypeStat
			volume string
		)
		if err := rows.Scan(&ts.Type, &ts.Count, &volume); err != nil {
			return nil, fmt.Errorf("%w: statistiques par type: %v", domain.ErrStorage, err)
		}
		if ts.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("parse volume %q: %w", volume, err)
		}
		stats.ByType = append(stats.ByType, ts)
	}
	return stats, rows.Err()
}
