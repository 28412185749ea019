package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE staff_accounts (
//	    id UUID PRIMARY KEY,
//	    email TEXT NOT NULL,
//	    name TEXT NOT NULL DEFAULT '',
//	    password_hash TEXT NOT NULL,
//	    commission_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    failed_attempts INT NOT NULL DEFAULT 0,
//	    locked_until TIMESTAMPTZ,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    deleted_at TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX staff_accounts_email_idx ON staff_accounts (lower(email)) WHERE deleted_at IS NULL;
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL-backed staff repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const accountColumns = `id, email, name, password_hash, commission_rate, failed_attempts, locked_until, created_at, updated_at, deleted_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CommissionRate,
		&a.FailedAttempts, &a.LockedUntil, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to scan staff account: %w", err)
	}
	return a, nil
}

// GetByID retrieves an account by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM staff_accounts WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanAccount(row)
}

// GetByEmail retrieves an account by email
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM staff_accounts WHERE lower(email) = lower($1) AND deleted_at IS NULL`, email)
	return scanAccount(row)
}

// Create stores a new account
func (r *PostgresRepository) Create(ctx context.Context, account Account) (Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO staff_accounts (id, email, name, password_hash, commission_rate, failed_attempts, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+accountColumns,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.CommissionRate, account.FailedAttempts, account.LockedUntil)
	return scanAccount(row)
}

// Update persists changes to an existing account
func (r *PostgresRepository) Update(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE staff_accounts
		SET email = $2, name = $3, password_hash = $4, commission_rate = $5,
		    failed_attempts = $6, locked_until = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+accountColumns,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.CommissionRate, account.FailedAttempts, account.LockedUntil)
	return scanAccount(row)
}

// List returns all non-deleted accounts ordered by email
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM staff_accounts WHERE deleted_at IS NULL ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Delete soft-deletes an account
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE staff_accounts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete staff account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
