package domain

import "time"

// PasswordResetToken records a single-use password reset secret. Only the
// SHA-256 digest of the secret is persisted; the plain token exists solely in
// the reset email. Rows are never deleted. Issuing a new token forces the
// expiry of prior live tokens into the past, so at most one token per account
// is live at any time.
type PasswordResetToken struct {
	ID        string
	AccountID string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsLiveAt reports whether the token is still redeemable at the given
// instant: never consumed and not yet expired.
func (t *PasswordResetToken) IsLiveAt(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
