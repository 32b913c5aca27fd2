package domain

import "time"

// Session is a server-side authentication session. Rows are never deleted;
// revocation and expiry are recorded in place so the trail stays auditable.
type Session struct {
	ID             string
	AccountID      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	RevokedAt      *time.Time
	// Client metadata, advisory only. Never used for authorization decisions.
	IPAddress string
	UserAgent string
	// CsrfTokenHash is the SHA-256 hex digest of the session's current CSRF
	// token. Rotated on every issuance; the plain token is never stored.
	CsrfTokenHash string
}

// IsRevoked reports whether the session has been explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// UsableAt reports whether the session is valid at the given instant under
// the supplied inactivity timeout. A session is usable iff it is not revoked,
// has not hit its absolute expiry, and has seen a validated request within
// the inactivity window.
func (s *Session) UsableAt(now time.Time, inactivityTimeout time.Duration) bool {
	if s.RevokedAt != nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	return now.Sub(s.LastActivityAt) < inactivityTimeout
}
