package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

// ResetTokensRepository handles password-reset token persistence. Rows only
// ever hold token hashes.
type ResetTokensRepository struct {
	db *sql.DB
}

// NewResetTokensRepository creates a new reset tokens repository.
func NewResetTokensRepository(db *sql.DB) *ResetTokensRepository {
	return &ResetTokensRepository{db: db}
}

// CreateInvalidatingPrior expires every outstanding live token for the
// account and inserts the new one, in a single transaction. At most one
// live token exists per account at any time.
func (r *ResetTokensRepository) CreateInvalidatingPrior(ctx context.Context, token *domain.PasswordResetToken) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		expire := `
			UPDATE password_reset_tokens
			SET expires_at = $2
			WHERE account_id = $1 AND used_at IS NULL AND expires_at > $2
		`
		if _, err := tx.ExecContext(ctx, expire, token.AccountID, token.CreatedAt); err != nil {
			return err
		}

		insert := `
			INSERT INTO password_reset_tokens (id, account_id, token_hash, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.ExecContext(ctx, insert,
			token.ID, token.AccountID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
		)
		return err
	})
}

// FindByHash retrieves a token row by its hash, whatever its lifecycle
// state; classification happens in the service.
func (r *ResetTokensRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	query := `
		SELECT id, account_id, token_hash, created_at, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	token := &domain.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.AccountID, &token.TokenHash,
		&token.CreatedAt, &token.ExpiresAt, &token.UsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResetTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// CountCreatedSince counts how many tokens the account requested after the
// given instant, consumed or not.
func (r *ResetTokensRepository) CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM password_reset_tokens
		WHERE account_id = $1 AND created_at > $2
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ConsumeAndResetPassword marks the token used, applies the new password
// hash, and clears the account's lockout state in one transaction. The
// consume step is conditional on used_at still being null and the token
// still being live; when it changes no row, another request already won the
// race and the transaction fails with domain.ErrResetTokenUsed, leaving the
// password untouched.
func (r *ResetTokensRepository) ConsumeAndResetPassword(ctx context.Context, tokenID, accountID, passwordHash string, usedAt time.Time) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		consume := `
			UPDATE password_reset_tokens
			SET used_at = $2
			WHERE id = $1 AND used_at IS NULL AND expires_at > $2
		`
		result, err := tx.ExecContext(ctx, consume, tokenID, usedAt)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrResetTokenUsed
		}

		applyPassword := `
			UPDATE accounts
			SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
			WHERE id = $1 AND is_deleted = FALSE
		`
		result, err = tx.ExecContext(ctx, applyPassword, accountID, passwordHash)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrAccountNotFound
		}
		return nil
	})
}
