package auth

import (
	"context"
	"sync"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

// In-memory store fakes. They mirror the SQL repositories' semantics,
// including the conditional consume on reset tokens, so service tests can
// exercise race behavior without a database.

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	now      func() time.Time
}

func newFakeAccountStore(now func() time.Time) *fakeAccountStore {
	return &fakeAccountStore{
		accounts: make(map[string]*domain.Account),
		now:      now,
	}
}

func (s *fakeAccountStore) add(a *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

func (s *fakeAccountStore) get(id string) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.accounts[id]
	return &cp
}

func (s *fakeAccountStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *fakeAccountStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAccountStore) RecordFailedAttempt(_ context.Context, accountID string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, nil, domain.ErrAccountNotFound
	}
	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= threshold && a.LockedUntil == nil {
		until := s.now().Add(lockFor)
		a.LockedUntil = &until
	}
	if a.LockedUntil == nil {
		return a.FailedLoginAttempts, nil, nil
	}
	until := *a.LockedUntil
	return a.FailedLoginAttempts, &until, nil
}

func (s *fakeAccountStore) ClearLockout(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	return nil
}

func (s *fakeAccountStore) UpdatePassword(_ context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *fakeSessionStore) get(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.sessions[id]
	return &cp
}

func (s *fakeSessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *fakeSessionStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (s *fakeSessionStore) RevokeAllForAccount(_ context.Context, accountID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.AccountID == accountID && sess.RevokedAt == nil && at.Before(sess.ExpiresAt) {
			sess.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) SetCsrfTokenHash(_ context.Context, id, csrfTokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.CsrfTokenHash = csrfTokenHash
	return nil
}

type fakeResetTokenStore struct {
	mu       sync.Mutex
	tokens   map[string]*domain.PasswordResetToken
	accounts *fakeAccountStore
}

func newFakeResetTokenStore(accounts *fakeAccountStore) *fakeResetTokenStore {
	return &fakeResetTokenStore{
		tokens:   make(map[string]*domain.PasswordResetToken),
		accounts: accounts,
	}
}

func (s *fakeResetTokenStore) get(id string) *domain.PasswordResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.tokens[id]
	return &cp
}

func (s *fakeResetTokenStore) CreateInvalidatingPrior(_ context.Context, t *domain.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tokens {
		if existing.AccountID == t.AccountID && existing.UsedAt == nil && t.CreatedAt.Before(existing.ExpiresAt) {
			existing.ExpiresAt = t.CreatedAt.Add(-time.Second)
		}
	}
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *fakeResetTokenStore) FindByHash(_ context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrResetTokenNotFound
}

func (s *fakeResetTokenStore) CountCreatedSince(_ context.Context, accountID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.AccountID == accountID && t.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeResetTokenStore) ConsumeAndResetPassword(_ context.Context, tokenID, accountID, passwordHash string, usedAt time.Time) error {
	s.mu.Lock()
	t, ok := s.tokens[tokenID]
	if !ok || t.UsedAt != nil || !usedAt.Before(t.ExpiresAt) {
		s.mu.Unlock()
		return domain.ErrResetTokenUsed
	}
	at := usedAt
	t.UsedAt = &at
	s.mu.Unlock()

	s.accounts.mu.Lock()
	defer s.accounts.mu.Unlock()
	if a, ok := s.accounts.accounts[accountID]; ok {
		a.PasswordHash = passwordHash
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
	}
	return nil
}
