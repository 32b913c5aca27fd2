package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// ResponseTimingNormalizer pads response times on authentication-sensitive
// operations up to a minimum floor, so that fast-failing paths (unknown
// email, locked account) are indistinguishable from slow ones (password
// verification).
type ResponseTimingNormalizer struct {
	Floor  time.Duration
	Jitter time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewResponseTimingNormalizer builds a normalizer with the given floor and
// jitter. A zero floor disables padding.
func NewResponseTimingNormalizer(floor, jitter time.Duration) *ResponseTimingNormalizer {
	return &ResponseTimingNormalizer{
		Floor:  floor,
		Jitter: jitter,
		sleep:  sleepCtx,
	}
}

// Start marks the beginning of a normalized operation.
func (n *ResponseTimingNormalizer) Start() time.Time {
	return time.Now()
}

// Normalize blocks until at least Floor (plus random jitter) has elapsed
// since started. Operations that already took longer return immediately.
// Context cancellation cuts the wait short.
func (n *ResponseTimingNormalizer) Normalize(ctx context.Context, started time.Time) {
	if n == nil || n.Floor <= 0 {
		return
	}
	target := n.Floor + randomJitter(n.Jitter)
	elapsed := time.Since(started)
	if elapsed >= target {
		return
	}
	n.sleep(ctx, target-elapsed)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// randomJitter returns a uniform random duration in [0, max). Drawing from
// crypto/rand keeps the padding unpredictable to a timing observer.
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	b, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max / 2
	}
	return time.Duration(b.Int64())
}
