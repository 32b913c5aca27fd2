// Package ratelimit implements fixed-window rate limiting for the abuse-prone
// authentication endpoints. Each protected endpoint owns an independent
// counter family and policy, so exhausting the login limiter never affects
// the forgot-password limiter for the same client.
package ratelimit

import (
	"context"
	"time"
)

// Endpoint keys under which the authentication endpoints register their
// policies.
const (
	EndpointLogin          = "login"
	EndpointForgotPassword = "forgot_password"
)

// CounterStore is the injected increment-and-check primitive. Incr atomically
// increments the counter for key, starting a fresh window when none is live,
// and returns the post-increment count together with the time remaining in
// the current window. Implementations must make increment-and-check a single
// atomic operation so two racing requests can never both observe "one under
// the limit".
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Policy bounds one endpoint's counter family.
type Policy struct {
	// Limit is the number of permitted attempts per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
}

// Decision is the outcome of a TryAcquire call.
type Decision struct {
	Allowed bool
	// RetryAfter is the time until the current window rolls over. Only
	// meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter evaluates per-endpoint fixed-window policies over a CounterStore.
type Limiter struct {
	store    CounterStore
	policies map[string]Policy
}

// NewLimiter creates a limiter with one policy per endpoint key.
func NewLimiter(store CounterStore, policies map[string]Policy) *Limiter {
	return &Limiter{store: store, policies: policies}
}

// Policy returns the policy configured for an endpoint.
func (l *Limiter) Policy(endpoint string) (Policy, bool) {
	p, ok := l.policies[endpoint]
	return p, ok
}

// TryAcquire consumes one permit for (endpoint, client). Endpoints without a
// configured policy are unlimited. A store failure denies the request: the
// limiter is a security decision and fails closed.
func (l *Limiter) TryAcquire(ctx context.Context, endpoint, client string) Decision {
	policy, ok := l.policies[endpoint]
	if !ok {
		return Decision{Allowed: true}
	}

	count, remaining, err := l.store.Incr(ctx, endpoint+":"+client, policy.Window)
	if err != nil {
		return Decision{Allowed: false, RetryAfter: policy.Window}
	}
	if count > int64(policy.Limit) {
		return Decision{Allowed: false, RetryAfter: remaining}
	}
	return Decision{Allowed: true}
}
