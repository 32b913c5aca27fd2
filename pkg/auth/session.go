package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicore/authd/pkg/domain"
)

// SessionConfig holds session service configuration.
type SessionConfig struct {
	JWTSecret []byte
	Issuer    string
	// SessionTTL is the absolute lifetime of a session.
	SessionTTL time.Duration
	// InactivityTimeout expires a session that has seen no authenticated
	// request for this long, even if SessionTTL has not elapsed.
	InactivityTimeout time.Duration
}

// AccessTokenClaims represents the claims in an access token. The session ID
// travels in the registered ID (jti) claim.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SessionService manages server-side sessions and the access tokens that
// reference them.
type SessionService struct {
	sessions SessionStore
	config   SessionConfig

	now func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(sessions SessionStore, config SessionConfig) *SessionService {
	return &SessionService{
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// Issue creates a new session for the account and returns it along with a
// signed access token. This is the single entry point for session creation.
func (s *SessionService) Issue(ctx context.Context, account *domain.Account, ipAddress, userAgent string) (*domain.Session, string, error) {
	now := s.now()
	session := &domain.Session{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.SessionTTL),
		LastActivityAt: now,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			Issuer:    s.config.Issuer,
			ID:        session.ID,
		},
		Email: account.Email,
		Name:  account.Name,
		Role:  account.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return session, accessToken, nil
}

// Validate checks that the session is live and records activity on it.
// Every failure mode (missing, revoked, expired, inactive too long) returns
// domain.ErrSessionExpired so callers cannot distinguish them.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, domain.ErrSessionExpired
	}

	now := s.now()
	if !session.UsableAt(now, s.config.InactivityTimeout) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessions.Touch(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("failed to record session activity: %w", err)
	}
	session.LastActivityAt = now

	return session, nil
}

// Revoke marks the session revoked. Revoking a session that is already
// revoked or does not exist succeeds silently.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID, s.now())
}

// RevokeAll revokes every active session for the account and returns the
// number of sessions that were revoked.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) (int, error) {
	return s.sessions.RevokeAllForAccount(ctx, accountID, s.now())
}

// ValidateAccessToken validates an access token signature and returns the
// claims. The session referenced by the claims still has to be validated
// separately.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
