package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

const accountColumns = `id, email, password_hash, name, role, status,
	       failed_login_attempts, locked_until, is_protected, is_deleted, deleted_at,
	       created_at, updated_at`

// AccountsRepository handles account persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.Name,
		&account.Role, &account.Status, &account.FailedLoginAttempts,
		&account.LockedUntil, &account.IsProtected, &account.IsDeleted,
		&account.DeletedAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FindByEmail retrieves an account by case-insensitive email. Soft-deleted
// rows are included; login treats them as credential failures so a deleted
// account stays indistinguishable from a missing one.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// FindByID retrieves an account by ID, excluding soft-deleted rows.
func (r *AccountsRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1 AND is_deleted = FALSE
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a new account.
func (r *AccountsRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, name, role, status, is_protected, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.Name,
		account.Role, account.Status, account.IsProtected,
		account.CreatedAt, account.UpdatedAt,
	)
	return err
}

// RecordFailedAttempt increments the failed-attempt counter and sets
// locked_until when the new count reaches the threshold, all in one
// statement. The returned state lets the caller detect the exact lock
// transition: it happened iff attempts == threshold.
func (r *AccountsRepository) RecordFailedAttempt(ctx context.Context, accountID string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 AND locked_until IS NULL
		            THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING failed_login_attempts, locked_until
	`
	var attempts int
	var lockedUntil *time.Time
	err := r.db.QueryRowContext(ctx, query, accountID, threshold, lockFor.Seconds()).
		Scan(&attempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

// ClearLockout resets the failed-attempt counter and lock together; the two
// fields are only ever valid as a pair.
func (r *AccountsRepository) ClearLockout(ctx context.Context, accountID string) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AccountsRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, accountID, passwordHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
