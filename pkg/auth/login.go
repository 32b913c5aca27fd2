package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/domain"
)

// LoginConfig holds account-lockout configuration.
type LoginConfig struct {
	// LockoutThreshold is the failed-attempt count at which the account
	// locks.
	LockoutThreshold int
	// LockoutDuration is how long a lock lasts.
	LockoutDuration time.Duration
}

// LockedError reports a login attempt against a locked account.
type LockedError struct {
	UnlockAt time.Time
	// Remaining is the time until the lock expires, measured at the moment
	// the attempt was rejected.
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return domain.ErrAccountLocked.Error()
}

// Is lets errors.Is(err, domain.ErrAccountLocked) match a *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == domain.ErrAccountLocked
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Account     *domain.Account
	Session     *domain.Session
	AccessToken string
	CsrfToken   string
	// ReplacedSessions is how many prior sessions were revoked because a
	// new login supersedes them.
	ReplacedSessions int
}

// ClientInfo carries advisory request metadata into the auth services.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// LoginService verifies credentials and drives the account lockout state
// machine.
type LoginService struct {
	accounts AccountStore
	sessions *SessionService
	csrf     *CsrfService
	hasher   *PasswordHasher
	sink     audit.Sink
	config   LoginConfig
	logger   *slog.Logger

	now func() time.Time
}

// NewLoginService creates a new login service.
func NewLoginService(accounts AccountStore, sessions *SessionService, csrf *CsrfService, hasher *PasswordHasher, sink audit.Sink, config LoginConfig, logger *slog.Logger) *LoginService {
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginService{
		accounts: accounts,
		sessions: sessions,
		csrf:     csrf,
		hasher:   hasher,
		sink:     sink,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Authenticate verifies an email/password pair and, when it succeeds, issues
// a fresh session with a CSRF token.
//
// Precedence is fixed: lock check, then password check, then status check.
// An unknown or soft-deleted account fails exactly like a wrong password.
// A lock rejects the attempt without touching the failed-attempt counter.
func (s *LoginService) Authenticate(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	email = NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account.IsDeleted {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	if account.IsLockedAt(now) {
		return nil, &LockedError{
			UnlockAt:  *account.LockedUntil,
			Remaining: account.LockedUntil.Sub(now),
		}
	}
	if account.LockExpiredAt(now) {
		// Lazy unlock: the lock has run out, clear it before evaluating
		// this attempt.
		if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("failed to clear expired lockout: %w", err)
		}
		account.FailedLoginAttempts = 0
		account.LockedUntil = nil
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, s.recordFailure(ctx, account, client)
	}

	// Status is only checked after the password proved correct, so a wrong
	// password against an inactive account still reads as invalid
	// credentials.
	if !account.IsActive() {
		return nil, domain.ErrAccountInactive
	}

	if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("failed to reset failed attempts: %w", err)
	}

	replaced, err := s.sessions.RevokeAll(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke prior sessions: %w", err)
	}
	if replaced > 0 {
		ev := audit.NewEvent(audit.ActionSessionReplaced)
		ev.AccountID = account.ID
		ev.IP = client.IPAddress
		ev.UserAgent = client.UserAgent
		ev.Metadata = map[string]any{"revoked_session_count": replaced}
		s.sink.Emit(ctx, ev)
	}

	session, accessToken, err := s.sessions.Issue(ctx, account, client.IPAddress, client.UserAgent)
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.csrf.Issue(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("account_id", account.ID),
		slog.String("session_id", session.ID))

	return &LoginResult{
		Account:          account,
		Session:          session,
		AccessToken:      accessToken,
		CsrfToken:        csrfToken,
		ReplacedSessions: replaced,
	}, nil
}

// recordFailure increments the failed-attempt counter and, when the counter
// hits the threshold, locks the account. The lock transition emits one
// ACCOUNT_LOCKED audit event; later attempts against the locked account do
// not.
func (s *LoginService) recordFailure(ctx context.Context, account *domain.Account, client ClientInfo) error {
	attempts, lockedUntil, err := s.accounts.RecordFailedAttempt(ctx, account.ID, s.config.LockoutThreshold, s.config.LockoutDuration)
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}

	if attempts == s.config.LockoutThreshold && lockedUntil != nil {
		ev := audit.NewEvent(audit.ActionAccountLocked)
		ev.AccountID = account.ID
		ev.IP = client.IPAddress
		ev.UserAgent = client.UserAgent
		ev.Metadata = map[string]any{
			"unlock_at":       lockedUntil.UTC().Format(time.RFC3339),
			"failed_attempts": attempts,
			"threshold":       s.config.LockoutThreshold,
		}
		s.sink.Emit(ctx, ev)

		s.logger.WarnContext(ctx, "account locked after repeated failed logins",
			slog.String("account_id", account.ID),
			slog.Int("failed_attempts", attempts))
	}

	return domain.ErrInvalidCredentials
}
