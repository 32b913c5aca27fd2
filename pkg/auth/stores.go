package auth

import (
	"context"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

// AccountStore is the persistence surface the auth services need for
// accounts. Implementations must return domain.ErrAccountNotFound for
// missing rows.
type AccountStore interface {
	// FindByEmail looks up an account by normalized email. Soft-deleted
	// accounts are still returned so callers can treat them as
	// invalid-credential failures rather than unknown accounts.
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)

	FindByID(ctx context.Context, id string) (*domain.Account, error)

	// RecordFailedAttempt atomically increments the failed-attempt counter
	// and, when the counter reaches threshold, sets locked_until to
	// now+lockFor in the same statement. It returns the post-increment
	// counter value and the lock expiry, if any.
	RecordFailedAttempt(ctx context.Context, accountID string, threshold int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)

	// ClearLockout resets the failed-attempt counter and clears any lock.
	ClearLockout(ctx context.Context, accountID string) error

	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
}

// SessionStore persists server-side session records.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error

	// Get returns the session regardless of revocation or expiry state;
	// callers decide usability. Missing sessions return
	// domain.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Touch advances last_activity_at on an active session.
	Touch(ctx context.Context, id string, at time.Time) error

	// Revoke marks the session revoked. Revoking an already-revoked or
	// missing session is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForAccount revokes every active session belonging to the
	// account and returns how many sessions were affected.
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int, error)

	SetCsrfTokenHash(ctx context.Context, id, csrfTokenHash string) error
}

// ResetTokenStore persists password-reset tokens. Only hashes of tokens are
// ever stored.
type ResetTokenStore interface {
	// CreateInvalidatingPrior expires all outstanding live tokens for the
	// account and inserts the new token record in one transaction.
	CreateInvalidatingPrior(ctx context.Context, t *domain.PasswordResetToken) error

	// FindByHash returns the token record for a token hash, regardless of
	// used or expired state. Missing hashes return
	// domain.ErrResetTokenNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)

	// CountCreatedSince counts tokens issued for the account after the
	// given instant, used or not.
	CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error)

	// ConsumeAndResetPassword atomically marks the token used, updates the
	// account's password hash, and clears any lockout state, in one
	// transaction. The consume step is a conditional update; if another
	// request already consumed the token the whole transaction fails with
	// domain.ErrResetTokenUsed.
	ConsumeAndResetPassword(ctx context.Context, tokenID, accountID, passwordHash string, usedAt time.Time) error
}
