package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

// SessionsRepository handles session persistence. Sessions are never
// deleted; revocation and expiry leave the row in place for audit.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Create inserts a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, created_at, expires_at, last_activity_at, ip_address, user_agent, csrf_token_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.AccountID, session.CreatedAt, session.ExpiresAt,
		session.LastActivityAt, session.IPAddress, session.UserAgent,
		session.CsrfTokenHash,
	)
	return err
}

// Get retrieves a session by ID regardless of its revocation or expiry
// state; the service layer decides usability.
func (r *SessionsRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, account_id, created_at, expires_at, last_activity_at, revoked_at, ip_address, user_agent, csrf_token_hash
		FROM sessions
		WHERE id = $1
	`
	session := &domain.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.AccountID, &session.CreatedAt, &session.ExpiresAt,
		&session.LastActivityAt, &session.RevokedAt, &session.IPAddress,
		&session.UserAgent, &session.CsrfTokenHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Touch advances last_activity_at on a live session.
func (r *SessionsRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET last_activity_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

// Revoke marks the session revoked. Already-revoked and missing sessions
// are left untouched without error, which keeps logout idempotent.
func (r *SessionsRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

// RevokeAllForAccount revokes every live session for the account and
// returns how many rows changed.
func (r *SessionsRepository) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`
	result, err := r.db.ExecContext(ctx, query, accountID, at)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// SetCsrfTokenHash rotates the session's CSRF token hash, invalidating
// whatever value was stored before.
func (r *SessionsRepository) SetCsrfTokenHash(ctx context.Context, id, csrfTokenHash string) error {
	query := `
		UPDATE sessions
		SET csrf_token_hash = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, csrfTokenHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
