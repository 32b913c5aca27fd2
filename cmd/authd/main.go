package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/authd/internal/config"
	httpserver "github.com/clinicore/authd/internal/http"
	"github.com/clinicore/authd/internal/notification"
	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/ratelimit"
	"github.com/clinicore/authd/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := repository.NewDB(ctx, cfg.DSN())
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	accountsRepo := repository.NewAccountsRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	resetTokensRepo := repository.NewResetTokensRepository(db)

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	policy := auth.DefaultPasswordPolicy()

	// Audit events go to a newline-delimited JSON file when configured,
	// otherwise to stdout alongside the logs.
	var auditSink audit.Sink
	if cfg.AuditLogPath != "" {
		auditFile, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			logger.Error("failed to open audit log", "error", err, "path", cfg.AuditLogPath)
			os.Exit(1)
		}
		defer auditFile.Close()
		auditSink = audit.NewJSONWriterSink(auditFile)
	} else {
		auditSink = audit.NewJSONWriterSink(os.Stdout)
	}

	sessionService := auth.NewSessionService(sessionsRepo, auth.SessionConfig{
		JWTSecret:         []byte(cfg.JWTSecret),
		Issuer:            cfg.JWTIssuer,
		SessionTTL:        cfg.SessionTTL,
		InactivityTimeout: cfg.InactivityTimeout,
	})
	csrfService := auth.NewCsrfService(sessionsRepo)
	loginService := auth.NewLoginService(accountsRepo, sessionService, csrfService, hasher, auditSink, auth.LoginConfig{
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	}, logger)
	resetService := auth.NewResetService(accountsRepo, resetTokensRepo, sessionService, hasher, policy, auditSink, auth.ResetConfig{
		TokenTTL:   cfg.ResetTokenTTL,
		MaxPerHour: cfg.ResetMaxPerHour,
	}, logger)
	timing := auth.NewResponseTimingNormalizer(cfg.TimingFloor, cfg.TimingJitter)

	// Redis backs the limiter counters when configured, so limits hold
	// across replicas. A single instance gets the in-memory store.
	var counterStore ratelimit.CounterStore
	if cfg.HasRedis() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		counterStore = ratelimit.NewRedisStore(redisClient)
		logger.Info("rate limiter using redis", "addr", cfg.RedisAddr)
	} else {
		counterStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(counterStore, map[string]ratelimit.Policy{
		ratelimit.EndpointLogin:          {Limit: cfg.RateLimit.LoginLimit, Window: cfg.RateLimit.LoginWindow},
		ratelimit.EndpointForgotPassword: {Limit: cfg.RateLimit.ForgotLimit, Window: cfg.RateLimit.ForgotWindow},
	})

	var emailService *notification.EmailService
	if cfg.HasSMTP() {
		emailService = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email service enabled")
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		LoginService:    loginService,
		SessionService:  sessionService,
		CsrfService:     csrfService,
		ResetService:    resetService,
		Timing:          timing,
		EmailService:    emailService,
		Limiter:         limiter,
		AuditSink:       auditSink,
		RateLimit:       cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
		SessionTTL:      cfg.SessionTTL,
		CookieSecure:    cfg.CookieSecure,
		AppBaseURL:      cfg.AppBaseURL,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
