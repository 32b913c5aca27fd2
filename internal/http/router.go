package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/authd/internal/config"
	"github.com/clinicore/authd/internal/http/features/password"
	"github.com/clinicore/authd/internal/http/features/session"
	"github.com/clinicore/authd/internal/http/middleware"
	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/internal/notification"
	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/ratelimit"
)

// RouterConfig holds everything the router needs wired in.
type RouterConfig struct {
	Logger          *slog.Logger
	LoginService    *auth.LoginService
	SessionService  *auth.SessionService
	CsrfService     *auth.CsrfService
	ResetService    *auth.ResetService
	Timing          *auth.ResponseTimingNormalizer
	EmailService    *notification.EmailService
	Limiter         *ratelimit.Limiter
	AuditSink       audit.Sink
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
	SessionTTL      time.Duration
	CookieSecure    bool
	AppBaseURL      string
}

// NewRouter creates the HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))
	if cfg.RateLimit.Enabled && cfg.RateLimit.GlobalRequestsPerMinute > 0 {
		r.Use(middleware.GlobalRateLimit(cfg.RateLimit.GlobalRequestsPerMinute, cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	loginLimit := middleware.NoRateLimit()
	forgotLimit := middleware.NoRateLimit()
	if cfg.RateLimit.Enabled && cfg.Limiter != nil {
		loginLimit = middleware.EndpointRateLimit(cfg.Limiter, ratelimit.EndpointLogin, cfg.AuditSink)
		forgotLimit = middleware.EndpointRateLimit(cfg.Limiter, ratelimit.EndpointForgotPassword, cfg.AuditSink)
	}

	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.CookieSecure

	passwordHandler := password.NewHandler(
		cfg.Logger,
		cfg.LoginService,
		cfg.ResetService,
		cfg.Timing,
		cfg.EmailService,
		cookieConfig,
		cfg.SessionTTL,
		cfg.AppBaseURL,
	)
	sessionHandler := session.NewHandler(cfg.Logger, cfg.SessionService, cfg.CsrfService, cookieConfig)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", passwordHandler.Login)
		r.With(forgotLimit).Post("/forgot-password", passwordHandler.ForgotPassword)
		r.Get("/reset-password/validate", passwordHandler.ValidateResetToken)
		r.Post("/reset-password", passwordHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.SessionService))
			r.Get("/csrf", sessionHandler.Csrf)
			r.Get("/me", sessionHandler.Me)

			r.With(middleware.RequireCsrf(cfg.CsrfService)).Post("/logout", sessionHandler.Logout)
		})
	})

	return r
}
