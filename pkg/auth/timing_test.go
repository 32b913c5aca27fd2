package auth

import (
	"context"
	"testing"
	"time"
)

func TestNormalize_PadsUpToFloor(t *testing.T) {
	n := NewResponseTimingNormalizer(40*time.Millisecond, 0)

	started := n.Start()
	n.Normalize(context.Background(), started)
	if elapsed := time.Since(started); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, want at least the 40ms floor", elapsed)
	}
}

func TestNormalize_SlowOperationNotDelayedFurther(t *testing.T) {
	n := NewResponseTimingNormalizer(10*time.Millisecond, 0)
	var slept time.Duration
	n.sleep = func(_ context.Context, d time.Duration) { slept = d }

	started := time.Now().Add(-time.Second)
	n.Normalize(context.Background(), started)
	if slept != 0 {
		t.Errorf("slept %v for an operation already past the floor", slept)
	}
}

func TestNormalize_ZeroFloorDisabled(t *testing.T) {
	n := NewResponseTimingNormalizer(0, 0)
	n.sleep = func(context.Context, time.Duration) {
		t.Error("slept with a zero floor")
	}
	n.Normalize(context.Background(), time.Now())
}

func TestNormalize_CancelledContextReturnsEarly(t *testing.T) {
	n := NewResponseTimingNormalizer(5*time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := n.Start()
	done := make(chan struct{})
	go func() {
		n.Normalize(ctx, started)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Normalize did not abandon the wait on cancellation")
	}
}

func TestNormalize_JitterStaysWithinBound(t *testing.T) {
	n := NewResponseTimingNormalizer(10*time.Millisecond, 20*time.Millisecond)
	var slept time.Duration
	n.sleep = func(_ context.Context, d time.Duration) { slept = d }

	for i := 0; i < 50; i++ {
		slept = 0
		n.Normalize(context.Background(), time.Now())
		if slept < 0 || slept > 30*time.Millisecond {
			t.Fatalf("sleep %v outside [0, floor+jitter]", slept)
		}
	}
}
