package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/clinicore/authd/internal/httputil"
	"github.com/clinicore/authd/pkg/audit"
	"github.com/clinicore/authd/pkg/ratelimit"
)

// GlobalRateLimit applies a coarse per-IP abuse limit across the whole
// router, in front of the per-endpoint limiters.
func GlobalRateLimit(requestsPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if logger != nil {
				logger.Warn("global rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		}),
	)
}

// EndpointRateLimit enforces the named endpoint's fixed-window policy per
// client IP. Denials answer 429 with a Retry-After hint and emit a
// RATE_LIMIT_EXCEEDED audit event that deliberately carries no account or
// session identity: the limiter acts before authentication resolves one.
func EndpointRateLimit(limiter *ratelimit.Limiter, endpoint string, sink audit.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.TryAcquire(r.Context(), endpoint, ClientIP(r))
			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				if sink != nil {
					ev := audit.NewEvent(audit.ActionRateLimitExceeded)
					ev.IP = ClientIP(r)
					ev.Resource = r.URL.Path
					if policy, ok := limiter.Policy(endpoint); ok {
						ev.Metadata = map[string]any{
							"endpoint":       endpoint,
							"permit_limit":   policy.Limit,
							"window_seconds": int(policy.Window.Seconds()),
						}
					}
					sink.Emit(r.Context(), ev)
				}

				httputil.Error(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// ClientIP resolves the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
