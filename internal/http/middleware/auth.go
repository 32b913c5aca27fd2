package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/domain"
)

type contextKey string

const (
	// AccountIDKey is the context key for the authenticated account ID.
	AccountIDKey contextKey = "account_id"
	// SessionKey is the context key for the validated session.
	SessionKey contextKey = "session"
	// ClaimsKey is the context key for the token claims.
	ClaimsKey contextKey = "claims"
)

// Auth validates the access token and the server-side session it references,
// recording activity on the session. Every rejection is the same 401
// session_expired; a caller learns nothing about whether the session was
// missing, revoked, idle too long, or past its absolute lifetime.
// Checks the Authorization header first, then the session cookie.
func Auth(sessionService *auth.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}
			if tokenString == "" {
				if token, ok := httputil.GetSessionFromCookie(r); ok {
					tokenString = token
				}
			}
			if tokenString == "" {
				unauthorized(w)
				return
			}

			claims, err := sessionService.ValidateAccessToken(tokenString)
			if err != nil {
				unauthorized(w)
				return
			}

			// The session id travels in the jti claim; the session row is
			// the source of truth for revocation and inactivity.
			session, err := sessionService.Validate(r.Context(), claims.ID)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, session.AccountID)
			ctx = context.WithValue(ctx, SessionKey, session)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	httputil.Error(w, http.StatusUnauthorized, "session_expired", "authentication required")
}

// GetAccountID extracts the authenticated account ID from the context.
func GetAccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountIDKey).(string)
	return id, ok
}

// GetSession extracts the validated session from the context.
func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

// GetClaims extracts the token claims from the context.
func GetClaims(ctx context.Context) (*auth.AccessTokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.AccessTokenClaims)
	return claims, ok
}
