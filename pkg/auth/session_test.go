package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicore/authd/pkg/domain"
)

func newSessionHarness(t *testing.T) (*SessionService, *fakeSessionStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newFakeSessionStore()
	svc := NewSessionService(store, SessionConfig{
		JWTSecret:         []byte("test-secret"),
		Issuer:            "authd-test",
		SessionTTL:        8 * time.Hour,
		InactivityTimeout: 15 * time.Minute,
	})
	svc.now = clock.Now
	return svc, store, clock
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:     "a1",
		Email:  "doc@clinic.test",
		Name:   "Dr. Example",
		Role:   domain.RoleStandard,
		Status: domain.StatusActive,
	}
}

func TestSessionIssueAndValidate(t *testing.T) {
	svc, _, _ := newSessionHarness(t)
	ctx := context.Background()

	session, token, err := svc.Issue(ctx, testAccount(), "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty access token")
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.ID != session.ID {
		t.Errorf("jti = %q, want session id %q", claims.ID, session.ID)
	}
	if claims.Subject != "a1" {
		t.Errorf("sub = %q, want a1", claims.Subject)
	}
	if claims.Role != domain.RoleStandard {
		t.Errorf("role claim = %q", claims.Role)
	}

	got, err := svc.Validate(ctx, session.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.AccountID != "a1" {
		t.Errorf("AccountID = %q", got.AccountID)
	}
}

func TestSessionValidate_TouchExtendsActivity(t *testing.T) {
	svc, store, clock := newSessionHarness(t)
	ctx := context.Background()

	session, _, err := svc.Issue(ctx, testAccount(), "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Activity every 10 minutes keeps a 15-minute inactivity window alive
	// indefinitely, up to the absolute cap.
	for i := 0; i < 6; i++ {
		clock.Advance(10 * time.Minute)
		if _, err := svc.Validate(ctx, session.ID); err != nil {
			t.Fatalf("Validate after %d touches: %v", i, err)
		}
	}
	if got := store.get(session.ID); !got.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, clock.Now())
	}
}

func TestSessionValidate_UniformExpiry(t *testing.T) {
	svc, _, clock := newSessionHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		session func(t *testing.T) string
	}{
		{
			name: "unknown session",
			session: func(t *testing.T) string {
				return "no-such-session"
			},
		},
		{
			name: "revoked session",
			session: func(t *testing.T) string {
				s, _, err := svc.Issue(ctx, testAccount(), "", "")
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				if err := svc.Revoke(ctx, s.ID); err != nil {
					t.Fatalf("Revoke: %v", err)
				}
				return s.ID
			},
		},
		{
			name: "inactivity timeout",
			session: func(t *testing.T) string {
				s, _, err := svc.Issue(ctx, testAccount(), "", "")
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				clock.Advance(16 * time.Minute)
				return s.ID
			},
		},
		{
			name: "absolute expiry despite activity",
			session: func(t *testing.T) string {
				s, _, err := svc.Issue(ctx, testAccount(), "", "")
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				for i := 0; i < 48; i++ {
					clock.Advance(10 * time.Minute)
					svc.Validate(ctx, s.ID)
				}
				return s.ID
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.session(t)
			if _, err := svc.Validate(ctx, id); !errors.Is(err, domain.ErrSessionExpired) {
				t.Errorf("Validate = %v, want ErrSessionExpired", err)
			}
		})
	}
}

func TestSessionRevoke_Idempotent(t *testing.T) {
	svc, store, _ := newSessionHarness(t)
	ctx := context.Background()

	session, _, err := svc.Issue(ctx, testAccount(), "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	firstRevokedAt := store.get(session.ID).RevokedAt
	if err := svc.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if !store.get(session.ID).RevokedAt.Equal(*firstRevokedAt) {
		t.Error("second revoke moved RevokedAt")
	}
	if err := svc.Revoke(ctx, "no-such-session"); err != nil {
		t.Errorf("Revoke missing session: %v", err)
	}
}

func TestSessionRevokeAll_CountsOnlyLiveSessions(t *testing.T) {
	svc, _, _ := newSessionHarness(t)
	ctx := context.Background()
	account := testAccount()

	s1, _, _ := svc.Issue(ctx, account, "", "")
	svc.Issue(ctx, account, "", "")
	other := testAccount()
	other.ID = "a2"
	svc.Issue(ctx, other, "", "")

	if err := svc.Revoke(ctx, s1.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	n, err := svc.RevokeAll(ctx, "a1")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 1 {
		t.Errorf("RevokeAll = %d, want 1 (already-revoked not recounted)", n)
	}
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	svc, _, _ := newSessionHarness(t)
	ctx := context.Background()

	_, token, err := svc.Issue(ctx, testAccount(), "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewSessionService(newFakeSessionStore(), SessionConfig{
		JWTSecret: []byte("different-secret"),
		Issuer:    "authd-test",
	})

	tests := []struct {
		name  string
		token string
		svc   *SessionService
	}{
		{"garbage", "not-a-jwt", svc},
		{"empty", "", svc},
		{"wrong key", token, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc.ValidateAccessToken(tt.token); !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("ValidateAccessToken = %v, want ErrInvalidToken", err)
			}
		})
	}
}
