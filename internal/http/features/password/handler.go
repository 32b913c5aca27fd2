package password

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/clinicore/authd/internal/http/middleware"
	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/internal/notification"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/domain"
)

// Handler handles password authentication endpoints: login, forgot password,
// and password reset.
type Handler struct {
	logger       *slog.Logger
	loginService *auth.LoginService
	resetService *auth.ResetService
	timing       *auth.ResponseTimingNormalizer
	emailService *notification.EmailService
	cookieConfig httputil.CookieConfig
	sessionTTL   time.Duration
	appBaseURL   string
}

// NewHandler creates a new password handler. emailService may be nil, in
// which case reset tokens are issued but no mail goes out.
func NewHandler(
	logger *slog.Logger,
	loginService *auth.LoginService,
	resetService *auth.ResetService,
	timing *auth.ResponseTimingNormalizer,
	emailService *notification.EmailService,
	cookieConfig httputil.CookieConfig,
	sessionTTL time.Duration,
	appBaseURL string,
) *Handler {
	return &Handler{
		logger:       logger,
		loginService: loginService,
		resetService: resetService,
		timing:       timing,
		emailService: emailService,
		cookieConfig: cookieConfig,
		sessionTTL:   sessionTTL,
		appBaseURL:   appBaseURL,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login.
type LoginResponse struct {
	ExpiresIn int           `json:"expires_in"`
	CsrfToken string        `json:"csrf_token"`
	User      LoginUserInfo `json:"user"`
}

// LoginUserInfo is the account summary embedded in a login response.
type LoginUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login handles credential authentication.
// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "email and password are required")
		return
	}

	client := auth.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	result, err := h.loginService.Authenticate(r.Context(), req.Email, req.Password, client)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	httputil.SetSessionCookie(w, result.AccessToken, h.sessionTTL, h.cookieConfig)
	httputil.JSON(w, http.StatusOK, LoginResponse{
		ExpiresIn: int(h.sessionTTL.Seconds()),
		CsrfToken: result.CsrfToken,
		User: LoginUserInfo{
			ID:    result.Account.ID,
			Email: result.Account.Email,
			Role:  result.Account.Role,
		},
	})
}

func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	var locked *auth.LockedError
	switch {
	case errors.As(err, &locked):
		remaining := int(locked.Remaining.Seconds())
		if remaining < 1 {
			remaining = 1
		}
		httputil.Error(w, http.StatusForbidden, "account_locked",
			"account is temporarily locked",
			"unlock_at:"+locked.UnlockAt.UTC().Format(time.RFC3339),
			"remaining_seconds:"+strconv.Itoa(remaining),
		)
	case errors.Is(err, domain.ErrAccountInactive):
		httputil.Error(w, http.StatusForbidden, "account_inactive", "account is not active")
	case errors.Is(err, domain.ErrInvalidCredentials):
		httputil.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	default:
		// Unexpected failures look like a credential failure. Leaking
		// backend state from the login endpoint is worse than a retry.
		h.logger.Error("login failed", "error", err)
		httputil.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	}
}

// ForgotPasswordRequest represents a forgot-password request.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// forgotPasswordAccepted is the one body every syntactically valid
// forgot-password request receives, byte for byte, whether or not the
// account exists.
var forgotPasswordAccepted = map[string]string{
	"message": "If an account exists for that address, a reset link has been sent.",
}

// ForgotPassword issues a password-reset token and emails it.
// POST /api/v1/auth/forgot-password
//
// Malformed input fails fast. Everything after validation runs under the
// response timing floor, and the floor wait happens before the first response
// byte goes out, so the reply latency carries no account signal.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	email := auth.NormalizeEmail(req.Email)
	if err := auth.ValidateEmail(email); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "a valid email address is required")
		return
	}

	started := h.timing.Start()

	client := auth.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	generated, err := h.resetService.Generate(r.Context(), email, client)
	if err != nil {
		var tooMany *auth.TooManyResetsError
		if errors.As(err, &tooMany) {
			h.timing.Normalize(r.Context(), started)
			w.Header().Set("Retry-After", strconv.Itoa(int(tooMany.RetryAfter.Seconds())))
			httputil.Error(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			h.logger.Error("failed to generate reset token", "error", err)
		}
		// Unknown accounts and backend failures answer exactly like
		// success.
		h.timing.Normalize(r.Context(), started)
		httputil.JSON(w, http.StatusOK, forgotPasswordAccepted)
		return
	}

	if h.emailService != nil {
		resetURL := fmt.Sprintf("%s/auth/reset-password?token=%s", h.appBaseURL, generated.Token)
		to := email
		go func() {
			if err := h.emailService.SendPasswordResetEmail(to, resetURL); err != nil {
				h.logger.Error("failed to send password reset email", "error", err)
			}
		}()
	}

	h.timing.Normalize(r.Context(), started)
	httputil.JSON(w, http.StatusOK, forgotPasswordAccepted)
}

// ValidateTokenResponse represents a valid reset token.
type ValidateTokenResponse struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidateResetToken reports whether a reset token is redeemable, so the
// reset form can reject a dead link before asking for a new password.
// GET /api/v1/auth/reset-password/validate?token=
func (h *Handler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "token is required")
		return
	}

	record, err := h.resetService.Validate(r.Context(), token)
	if err != nil {
		h.writeTokenError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ValidateTokenResponse{
		Valid:     true,
		ExpiresAt: record.ExpiresAt,
	})
}

// ResetPasswordRequest represents a password reset submission.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword consumes a reset token and applies the new password.
// POST /api/v1/auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid_input", "token and new_password are required")
		return
	}

	client := auth.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	err := h.resetService.Consume(r.Context(), req.Token, req.NewPassword, client)
	if err != nil {
		var weak *auth.WeakPasswordError
		if errors.As(err, &weak) {
			httputil.Error(w, http.StatusBadRequest, "password_requirements_not_met",
				"password does not meet requirements", weak.Violations...)
			return
		}
		h.writeTokenError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

func (h *Handler) writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrResetTokenUsed):
		httputil.Error(w, http.StatusUnauthorized, "token_used", "reset token has already been used")
	case errors.Is(err, domain.ErrResetTokenExpired):
		httputil.Error(w, http.StatusUnauthorized, "token_expired", "reset token has expired")
	case errors.Is(err, domain.ErrResetTokenNotFound):
		httputil.Error(w, http.StatusUnauthorized, "invalid_token", "reset token is not valid")
	default:
		h.logger.Error("password reset failed", "error", err)
		httputil.Error(w, http.StatusUnauthorized, "invalid_token", "reset token is not valid")
	}
}
