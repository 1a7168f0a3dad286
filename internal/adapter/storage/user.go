package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/djibys/mini-bank/internal/core/domain"
)

// UserRepository resolves agent identities for the auth layer. User
// lifecycle (profiles, photos, blocking flows) lives outside the core;
// only what login needs is here.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// HashPassword hashes a password for storage and comparison. We never
// store or compare plain text.
func HashPassword(pwd string) string {
	sum := sha256.Sum256([]byte(pwd))
	return hex.EncodeToString(sum[:])
}

const userColumns = `id, nom, prenom, email, type_utilisateur, is_blocked, last_login, created_at`

func scanUser(row pgx.Row, pwdHash *string) (*domain.User, error) {
	var u domain.User
	dest := []any{&u.ID, &u.Nom, &u.Prenom, &u.Email, &u.TypeUtilisateur, &u.IsBlocked, &u.LastLogin, &u.CreatedAt}
	if pwdHash != nil {
		dest = append(dest, pwdHash)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByEmail returns the user plus the stored password hash.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	query := `SELECT ` + userColumns + `, pwd_hash FROM users WHERE email = $1`
	var pwdHash string
	u, err := scanUser(r.db.QueryRow(ctx, query, email), &pwdHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: lecture utilisateur: %v", domain.ErrStorage, err)
	}
	return u, pwdHash, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id), nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lecture utilisateur: %v", domain.ErrStorage, err)
	}
	return u, nil
}

// Create registers a user. Fails with ErrConflict on a duplicate email.
func (r *UserRepository) Create(ctx context.Context, nom, prenom, email, pwd, userType string) (*domain.User, error) {
	query := `
		INSERT INTO users (id, nom, prenom, email, pwd_hash, type_utilisateur)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, uuid.New(), nom, prenom, email, HashPassword(pwd), userType), nil)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("%w: création utilisateur: %v", domain.ErrStorage, err)
	}
	return u, nil
}

// TouchLastLogin records a successful login.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: mise à jour last_login: %v", domain.ErrStorage, err)
	}
	return nil
}
