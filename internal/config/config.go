package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT / sessions
	JWTSecret         string
	JWTIssuer         string
	SessionTTL        time.Duration
	InactivityTimeout time.Duration

	// Account lockout
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Password hashing
	BcryptCost int

	// Password reset
	ResetTokenTTL   time.Duration
	ResetMaxPerHour int

	// Anti-enumeration timing floor on forgot-password
	TimingFloor  time.Duration
	TimingJitter time.Duration

	// Rate limiting
	RateLimit RateLimitConfig

	// Redis (optional shared counter store for the endpoint rate limiter)
	RedisAddr     string
	RedisPassword string

	// SMTP (optional)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	AppBaseURL string

	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig

	CookieSecure bool

	AuditLogPath string
}

// RateLimitConfig holds per-endpoint fixed-window limits plus the global
// per-IP abuse limit applied to the whole router.
type RateLimitConfig struct {
	Enabled bool

	LoginLimit  int
	LoginWindow time.Duration

	ForgotLimit  int
	ForgotWindow time.Duration

	GlobalRequestsPerMinute int
}

// SecurityHeadersConfig holds security header middleware configuration.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	MaxRequestBodySize int64
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "authd"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Session defaults
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "authd"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 8*time.Hour),
		InactivityTimeout: getEnvDuration("SESSION_INACTIVITY_TIMEOUT", 15*time.Minute),

		// Lockout defaults
		LockoutThreshold: getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  getEnvDuration("LOCKOUT_DURATION", 30*time.Minute),

		BcryptCost: getEnvInt("BCRYPT_COST", 12),

		// Reset token defaults
		ResetTokenTTL:   getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		ResetMaxPerHour: getEnvInt("RESET_MAX_PER_HOUR", 3),

		// Timing floor defaults
		TimingFloor:  getEnvDuration("TIMING_FLOOR", 500*time.Millisecond),
		TimingJitter: getEnvDuration("TIMING_JITTER", 0),

		RateLimit: RateLimitConfig{
			Enabled:                 getEnvBool("RATE_LIMIT_ENABLED", true),
			LoginLimit:              getEnvInt("RATE_LIMIT_LOGIN_REQUESTS", 5),
			LoginWindow:             getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", time.Minute),
			ForgotLimit:             getEnvInt("RATE_LIMIT_FORGOT_REQUESTS", 5),
			ForgotWindow:            getEnvDuration("RATE_LIMIT_FORGOT_WINDOW", 15*time.Minute),
			GlobalRequestsPerMinute: getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 300),
		},

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// SMTP (optional)
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", ""),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 0),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "no-referrer"),
		},

		Validation: ValidationConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
		},

		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		AuditLogPath: getEnv("AUDIT_LOG_PATH", ""),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// HasSMTP returns true if email delivery is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// HasRedis returns true if a shared rate-limit counter store is configured.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
