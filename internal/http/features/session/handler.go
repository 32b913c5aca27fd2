package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicore/authd/internal/http/middleware"
	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/auth"
)

// Handler handles session lifecycle endpoints for an authenticated caller.
type Handler struct {
	logger         *slog.Logger
	sessionService *auth.SessionService
	csrfService    *auth.CsrfService
	cookieConfig   httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, sessionService *auth.SessionService, csrfService *auth.CsrfService, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:         logger,
		sessionService: sessionService,
		csrfService:    csrfService,
		cookieConfig:   cookieConfig,
	}
}

// Logout revokes the caller's session and clears the cookie. Revocation is
// idempotent: logging out an already-revoked session still answers 200.
// POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "session_expired", "authentication required")
		return
	}

	if err := h.sessionService.Revoke(r.Context(), session.ID); err != nil {
		h.logger.Error("failed to revoke session", "error", err, "session_id", session.ID)
		httputil.Error(w, http.StatusInternalServerError, "internal_error", "logout failed")
		return
	}

	httputil.ClearSessionCookie(w, h.cookieConfig)
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// CsrfResponse carries a freshly rotated CSRF token.
type CsrfResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Csrf rotates the session's CSRF token and returns the new value. The
// previous token stops validating immediately.
// GET /api/v1/auth/csrf
func (h *Handler) Csrf(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "session_expired", "authentication required")
		return
	}

	token, err := h.csrfService.Issue(r.Context(), session.ID)
	if err != nil {
		h.logger.Error("failed to issue csrf token", "error", err, "session_id", session.ID)
		httputil.Error(w, http.StatusInternalServerError, "internal_error", "could not issue token")
		return
	}

	httputil.JSON(w, http.StatusOK, CsrfResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	})
}

// MeResponse is the authenticated caller's account summary.
type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Me returns the calling account's identity.
// GET /api/v1/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "session_expired", "authentication required")
		return
	}

	httputil.JSON(w, http.StatusOK, MeResponse{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	})
}
