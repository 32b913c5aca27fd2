package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicore/authd/internal/http/middleware"
	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/auth"
	"github.com/clinicore/authd/pkg/domain"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *memSessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *memSessionStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (s *memSessionStore) RevokeAllForAccount(_ context.Context, accountID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.AccountID == accountID && sess.RevokedAt == nil {
			sess.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memSessionStore) SetCsrfTokenHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.CsrfTokenHash = hash
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memSessionStore, *domain.Session) {
	t.Helper()
	store := newMemSessionStore()
	sessionService := auth.NewSessionService(store, auth.SessionConfig{
		JWTSecret:         []byte("test-secret"),
		Issuer:            "authd-test",
		SessionTTL:        8 * time.Hour,
		InactivityTimeout: 15 * time.Minute,
	})
	csrfService := auth.NewCsrfService(store)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), sessionService, csrfService, httputil.DefaultCookieConfig())

	account := &domain.Account{ID: "a1", Email: "doc@clinic.test", Role: domain.RoleStandard, Status: domain.StatusActive}
	session, _, err := sessionService.Issue(context.Background(), account, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return handler, store, session
}

func requestWithSession(method, target string, session *domain.Session) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(context.WithValue(req.Context(), middleware.SessionKey, session))
}

func TestLogout(t *testing.T) {
	handler, store, session := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Logout(rec, requestWithSession(http.MethodPost, "/api/v1/auth/logout", session))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "logged_out") {
		t.Errorf("body = %q, want logged_out status", rec.Body.String())
	}
	if store.sessions[session.ID].RevokedAt == nil {
		t.Error("session not revoked")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == httputil.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	handler, _, session := newTestHandler(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.Logout(rec, requestWithSession(http.MethodPost, "/api/v1/auth/logout", session))
		if rec.Code != http.StatusOK {
			t.Errorf("logout %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestLogout_NoSession(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCsrf_RotatesToken(t *testing.T) {
	handler, store, session := newTestHandler(t)

	first := httptest.NewRecorder()
	handler.Csrf(first, requestWithSession(http.MethodGet, "/api/v1/auth/csrf", session))
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", first.Code, first.Body.String())
	}

	var resp1 CsrfResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp1); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp1.Token == "" {
		t.Fatal("empty token")
	}
	if !resp1.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("expires_at = %v, want session expiry %v", resp1.ExpiresAt, session.ExpiresAt)
	}
	if store.sessions[session.ID].CsrfTokenHash != auth.HashToken(resp1.Token) {
		t.Error("stored hash does not match issued token")
	}

	second := httptest.NewRecorder()
	handler.Csrf(second, requestWithSession(http.MethodGet, "/api/v1/auth/csrf", session))
	var resp2 CsrfResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp2.Token == resp1.Token {
		t.Error("rotation returned the same token")
	}
	if store.sessions[session.ID].CsrfTokenHash == auth.HashToken(resp1.Token) {
		t.Error("prior token still validates after rotation")
	}
}

func TestMe(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	claims := &auth.AccessTokenClaims{Email: "doc@clinic.test", Role: domain.RoleStandard}
	claims.Subject = "a1"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.ClaimsKey, claims))

	rec := httptest.NewRecorder()
	handler.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp MeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "a1" || resp.Email != "doc@clinic.test" || resp.Role != domain.RoleStandard {
		t.Errorf("resp = %+v", resp)
	}
}
