package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/clinicore/authd/pkg/domain"
)

const csrfTokenBytes = 32

// CsrfService manages the per-session CSRF token. Only a hash of the token
// is stored server-side; the raw token is handed to the client once at issue
// time.
type CsrfService struct {
	sessions SessionStore
}

// NewCsrfService creates a new CSRF service.
func NewCsrfService(sessions SessionStore) *CsrfService {
	return &CsrfService{sessions: sessions}
}

// Issue generates a fresh CSRF token for the session, replacing any
// previously issued one, and returns the raw token.
func (c *CsrfService) Issue(ctx context.Context, sessionID string) (string, error) {
	token, err := GenerateToken(csrfTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	if err := c.sessions.SetCsrfTokenHash(ctx, sessionID, HashToken(token)); err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	return token, nil
}

// Validate checks a presented CSRF token against the session's stored hash
// in constant time. An absent token, a session with no token issued, and a
// mismatch all fail identically with domain.ErrCsrfMismatch.
func (c *CsrfService) Validate(session *domain.Session, token string) error {
	if session == nil || session.CsrfTokenHash == "" || token == "" {
		return domain.ErrCsrfMismatch
	}
	presented := HashToken(token)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(session.CsrfTokenHash)) != 1 {
		return domain.ErrCsrfMismatch
	}
	return nil
}
