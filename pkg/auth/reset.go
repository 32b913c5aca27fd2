package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/domain"
)

const resetTokenBytes = 32

// ResetConfig holds password-reset token configuration.
type ResetConfig struct {
	// TokenTTL is how long a reset token stays valid.
	TokenTTL time.Duration
	// MaxPerHour caps how many tokens one account can request in a
	// trailing hour.
	MaxPerHour int
}

// WeakPasswordError carries the policy violations for a rejected password.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return domain.ErrWeakPassword.Error() + ": " + strings.Join(e.Violations, "; ")
}

// Is lets errors.Is(err, domain.ErrWeakPassword) match a *WeakPasswordError.
func (e *WeakPasswordError) Is(target error) bool {
	return target == domain.ErrWeakPassword
}

// TooManyResetsError reports that the account hit its reset-request cap.
type TooManyResetsError struct {
	RetryAfter time.Duration
}

func (e *TooManyResetsError) Error() string {
	return "too many password reset requests"
}

// GeneratedToken is the result of issuing a reset token. Token holds the raw
// secret and exists only to be handed to the notifier; it is never persisted.
type GeneratedToken struct {
	Token     string
	TokenID   string
	AccountID string
	ExpiresAt time.Time
}

// ResetService issues and consumes password-reset tokens.
type ResetService struct {
	accounts AccountStore
	tokens   ResetTokenStore
	sessions *SessionService
	hasher   *PasswordHasher
	policy   *PasswordPolicy
	sink     audit.Sink
	config   ResetConfig
	logger   *slog.Logger

	now func() time.Time
}

// NewResetService creates a new password-reset service.
func NewResetService(accounts AccountStore, tokens ResetTokenStore, sessions *SessionService, hasher *PasswordHasher, policy *PasswordPolicy, sink audit.Sink, config ResetConfig, logger *slog.Logger) *ResetService {
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetService{
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		sink:     sink,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate issues a fresh reset token for the account behind email,
// invalidating any outstanding live tokens for that account. Missing,
// deleted, and inactive accounts all return domain.ErrAccountNotFound;
// callers answer the client identically either way. Accounts over the
// hourly request cap get a TooManyResetsError.
func (s *ResetService) Generate(ctx context.Context, email string, client ClientInfo) (*GeneratedToken, error) {
	email = NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, domain.ErrAccountNotFound
	}

	now := s.now()
	if s.config.MaxPerHour > 0 {
		count, err := s.tokens.CountCreatedSince(ctx, account.ID, now.Add(-time.Hour))
		if err != nil {
			return nil, fmt.Errorf("failed to count recent reset tokens: %w", err)
		}
		if count >= s.config.MaxPerHour {
			return nil, &TooManyResetsError{RetryAfter: time.Hour}
		}
	}

	token, err := GenerateToken(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}

	record := &domain.PasswordResetToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TokenTTL),
	}
	if err := s.tokens.CreateInvalidatingPrior(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store reset token: %w", err)
	}

	ev := audit.NewEvent(audit.ActionPasswordResetRequested)
	ev.AccountID = account.ID
	ev.IP = client.IPAddress
	ev.UserAgent = client.UserAgent
	s.sink.Emit(ctx, ev)

	s.logger.InfoContext(ctx, "password reset token issued",
		slog.String("account_id", account.ID),
		slog.String("token_id", record.ID))

	return &GeneratedToken{
		Token:     token,
		TokenID:   record.ID,
		AccountID: account.ID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Validate classifies a presented token without consuming it.
func (s *ResetService) Validate(ctx context.Context, plainToken string) (*domain.PasswordResetToken, error) {
	if plainToken == "" {
		return nil, domain.ErrResetTokenNotFound
	}
	record, err := s.tokens.FindByHash(ctx, HashToken(plainToken))
	if err != nil {
		return nil, err
	}
	if record.UsedAt != nil {
		return nil, domain.ErrResetTokenUsed
	}
	if !s.now().Before(record.ExpiresAt) {
		return nil, domain.ErrResetTokenExpired
	}
	return record, nil
}

// Consume redeems a token and applies the new password. Under concurrent
// calls with the same token exactly one caller succeeds; losers see
// domain.ErrResetTokenUsed. A weak password rejects before the token is
// consumed, so the same link stays usable for a corrected attempt. Success
// unlocks the account and revokes every live session it has.
func (s *ResetService) Consume(ctx context.Context, plainToken, newPassword string, client ClientInfo) error {
	if violations := s.policy.Violations(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}

	record, err := s.Validate(ctx, plainToken)
	if err != nil {
		s.emitResetFailed(ctx, err, client)
		return err
	}

	// Hashing is CPU-bound; keep it outside the transaction.
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	now := s.now()
	if err := s.tokens.ConsumeAndResetPassword(ctx, record.ID, record.AccountID, passwordHash, now); err != nil {
		if errors.Is(err, domain.ErrResetTokenUsed) {
			// Lost the race to another request holding the same token.
			s.emitResetFailed(ctx, domain.ErrResetTokenUsed, client)
			return domain.ErrResetTokenUsed
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	completed := audit.NewEvent(audit.ActionPasswordResetCompleted)
	completed.AccountID = record.AccountID
	completed.IP = client.IPAddress
	completed.UserAgent = client.UserAgent
	s.sink.Emit(ctx, completed)

	revoked, err := s.sessions.RevokeAll(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions after password reset: %w", err)
	}

	ev := audit.NewEvent(audit.ActionPasswordResetSessionsInval)
	ev.AccountID = record.AccountID
	ev.IP = client.IPAddress
	ev.UserAgent = client.UserAgent
	ev.Metadata = map[string]any{"revoked_session_count": revoked}
	s.sink.Emit(ctx, ev)

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", record.AccountID),
		slog.Int("revoked_sessions", revoked))

	return nil
}

// emitResetFailed records a token-related reset failure. The event carries no
// account identity: a bad token never resolves to one.
func (s *ResetService) emitResetFailed(ctx context.Context, cause error, client ClientInfo) {
	var reason string
	switch {
	case errors.Is(cause, domain.ErrResetTokenUsed):
		reason = "token_used"
	case errors.Is(cause, domain.ErrResetTokenExpired):
		reason = "token_expired"
	case errors.Is(cause, domain.ErrResetTokenNotFound):
		reason = "invalid_token"
	default:
		return
	}

	ev := audit.NewEvent(audit.ActionPasswordResetFailed)
	ev.IP = client.IPAddress
	ev.UserAgent = client.UserAgent
	ev.Metadata = map[string]any{"reason": reason}
	s.sink.Emit(ctx, ev)
}
