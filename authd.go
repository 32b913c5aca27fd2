// Package authd provides an embeddable authentication core with account
// lockout, server-side sessions, CSRF protection, and single-use password
// resets.
//
// Setup:
//
//  1. Create the accounts, sessions, and password_reset_tokens tables
//  2. Create an instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/clinic?sslmode=disable")
//
//	core, err := authd.New(authd.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // fails if the schema is missing
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/api/v1/auth", core.Router())
//	http.ListenAndServe(":8080", r)
package authd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/authd/internal/http/features/password"
	"github.com/clinicore/authd/internal/http/features/session"
	"github.com/clinicore/authd/internal/http/middleware"
	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/repository"
)

// Config holds the configuration for an embedded authentication core.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// JWTSecret signs access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in access tokens (default: "authd").
	JWTIssuer string

	// SessionTTL is the absolute session lifetime (default: 8 hours).
	SessionTTL time.Duration

	// InactivityTimeout expires idle sessions (default: 15 minutes).
	InactivityTimeout time.Duration

	// LockoutThreshold is the failed-attempt count that locks an account
	// (default: 5).
	LockoutThreshold int

	// LockoutDuration is how long a lockout lasts (default: 30 minutes).
	LockoutDuration time.Duration

	// BcryptCost is the password hashing work factor (default: 12).
	BcryptCost int

	// ResetTokenTTL is the reset-token lifetime (default: 1 hour).
	ResetTokenTTL time.Duration

	// ResetMaxPerHour caps reset requests per account (default: 3).
	ResetMaxPerHour int

	// TimingFloor pads forgot-password responses (default: 500ms).
	TimingFloor time.Duration

	// TimingJitter adds random padding on top of the floor (default: 0).
	TimingJitter time.Duration

	// AuditSink receives security events (default: discard).
	AuditSink audit.Sink

	// Logger is the structured logger (default: slog JSON to stdout).
	Logger *slog.Logger
}

// Core is an embedded authentication instance.
type Core struct {
	config          Config
	db              *sql.DB
	accountsRepo    *repository.AccountsRepository
	sessionsRepo    *repository.SessionsRepository
	resetTokensRepo *repository.ResetTokensRepository
	loginService    *auth.LoginService
	sessionService  *auth.SessionService
	csrfService     *auth.CsrfService
	resetService    *auth.ResetService
	timing          *auth.ResponseTimingNormalizer
}

// New creates an authentication core with the given configuration. Returns
// an error if the required database tables do not exist.
func New(cfg Config) (*Core, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateSchema(cfg.DB); err != nil {
		return nil, err
	}

	accountsRepo := repository.NewAccountsRepository(cfg.DB)
	sessionsRepo := repository.NewSessionsRepository(cfg.DB)
	resetTokensRepo := repository.NewResetTokensRepository(cfg.DB)

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	policy := auth.DefaultPasswordPolicy()

	sessionService := auth.NewSessionService(sessionsRepo, auth.SessionConfig{
		JWTSecret:         []byte(cfg.JWTSecret),
		Issuer:            cfg.JWTIssuer,
		SessionTTL:        cfg.SessionTTL,
		InactivityTimeout: cfg.InactivityTimeout,
	})
	csrfService := auth.NewCsrfService(sessionsRepo)
	loginService := auth.NewLoginService(accountsRepo, sessionService, csrfService, hasher, cfg.AuditSink, auth.LoginConfig{
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	}, cfg.Logger)
	resetService := auth.NewResetService(accountsRepo, resetTokensRepo, sessionService, hasher, policy, cfg.AuditSink, auth.ResetConfig{
		TokenTTL:   cfg.ResetTokenTTL,
		MaxPerHour: cfg.ResetMaxPerHour,
	}, cfg.Logger)

	return &Core{
		config:          cfg,
		db:              cfg.DB,
		accountsRepo:    accountsRepo,
		sessionsRepo:    sessionsRepo,
		resetTokensRepo: resetTokensRepo,
		loginService:    loginService,
		sessionService:  sessionService,
		csrfService:     csrfService,
		resetService:    resetService,
		timing:          auth.NewResponseTimingNormalizer(cfg.TimingFloor, cfg.TimingJitter),
	}, nil
}

// Router returns a chi router carrying the authentication routes. Mount it
// on your main router:
//
//	r.Mount("/api/v1/auth", core.Router())
//
// Routes:
//
//	POST /login                     - Email/password login
//	POST /forgot-password           - Request a reset token
//	GET  /reset-password/validate   - Check a reset token
//	POST /reset-password            - Consume a reset token
//	GET  /csrf                      - Rotate the CSRF token (protected)
//	GET  /me                        - Current account (protected)
//	POST /logout                    - Revoke the session (protected + CSRF)
//
// Rate limiting, logging, and metrics are deliberately left to the host
// application's middleware stack.
func (c *Core) Router() chi.Router {
	r := chi.NewRouter()

	passwordHandler := password.NewHandler(
		c.config.Logger,
		c.loginService,
		c.resetService,
		c.timing,
		nil, // email delivery is owned by the host application
		httputil.DefaultCookieConfig(),
		c.config.SessionTTL,
		"",
	)
	r.Post("/login", passwordHandler.Login)
	r.Post("/forgot-password", passwordHandler.ForgotPassword)
	r.Get("/reset-password/validate", passwordHandler.ValidateResetToken)
	r.Post("/reset-password", passwordHandler.ResetPassword)

	sessionHandler := session.NewHandler(c.config.Logger, c.sessionService, c.csrfService, httputil.DefaultCookieConfig())
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(c.sessionService))
		r.Get("/csrf", sessionHandler.Csrf)
		r.Get("/me", sessionHandler.Me)
		r.With(middleware.RequireCsrf(c.csrfService)).Post("/logout", sessionHandler.Logout)
	})

	return r
}

// SessionService exposes the session service for advanced usage.
func (c *Core) SessionService() *auth.SessionService {
	return c.sessionService
}

// ResetService exposes the password-reset service for advanced usage, such
// as delivering reset tokens through a custom channel.
func (c *Core) ResetService() *auth.ResetService {
	return c.resetService
}

// AuthMiddleware returns middleware that validates the session on each
// request. Use it to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(core.AuthMiddleware())
//	    r.Get("/records", handler)
//	})
func (c *Core) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(c.sessionService)
}

// CsrfMiddleware returns middleware enforcing the per-session CSRF token on
// state-changing requests. Run it after AuthMiddleware.
func (c *Core) CsrfMiddleware() func(http.Handler) http.Handler {
	return middleware.RequireCsrf(c.csrfService)
}

// GetAccountID extracts the authenticated account ID from a request. Use
// after AuthMiddleware.
func GetAccountID(r *http.Request) (string, bool) {
	return middleware.GetAccountID(r.Context())
}

// HealthHandler returns a simple health check handler.
func (c *Core) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Routes registers all auth routes on an http.ServeMux under the given
// prefix:
//
//	mux := http.NewServeMux()
//	core.Routes(mux, "/api/v1/auth")
func (c *Core) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, c.Router()))
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("authd: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("authd: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("authd: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "authd"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = 15 * time.Minute
	}
	if cfg.LockoutThreshold == 0 {
		cfg.LockoutThreshold = 5
	}
	if cfg.LockoutDuration == 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if cfg.ResetMaxPerHour == 0 {
		cfg.ResetMaxPerHour = 3
	}
	if cfg.TimingFloor == 0 {
		cfg.TimingFloor = 500 * time.Millisecond
	}
	if cfg.AuditSink == nil {
		cfg.AuditSink = audit.NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that the required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{"accounts", "sessions", "password_reset_tokens"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(context.Background(), query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("authd: missing table '%s' - create the schema first", table)
		}
		if err != nil {
			return fmt.Errorf("authd: failed to check schema: %w", err)
		}
	}

	return nil
}
