package middleware

import (
	"net/http"

	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/auth"
)

// CsrfHeaderName is the request header carrying the CSRF token.
const CsrfHeaderName = "X-CSRF-Token"

// RequireCsrf enforces the per-session CSRF token on state-changing verbs.
// Safe methods pass through. Must run after Auth so the session is on the
// context. Every failure is the same 403 with no cause differentiation.
func RequireCsrf(csrfService *auth.CsrfService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			session, ok := GetSession(r.Context())
			if !ok {
				forbiddenCsrf(w)
				return
			}
			if err := csrfService.Validate(session, r.Header.Get(CsrfHeaderName)); err != nil {
				forbiddenCsrf(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func forbiddenCsrf(w http.ResponseWriter) {
	httputil.Error(w, http.StatusForbidden, "csrf_validation_failed", "request could not be validated")
}
