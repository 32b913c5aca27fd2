package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_Incr(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, remaining, err := store.Incr(ctx, "login:10.0.0.1", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
		if remaining <= 0 || remaining > time.Minute {
			t.Errorf("remaining = %v, want within (0, window]", remaining)
		}
	}
}

func TestRedisStore_WindowExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if _, _, err := store.Incr(ctx, "login:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if _, _, err := store.Incr(ctx, "login:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	count, _, err := store.Incr(ctx, "login:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr after expiry: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want fresh window count of 1", count)
	}
}

func TestRedisStore_KeysAreIndependent(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, _, err := store.Incr(ctx, "login:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	count, _, err := store.Incr(ctx, "forgot-password:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want independent counter starting at 1", count)
	}
}

func TestLimiter_WithRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	limiter := NewLimiter(store, map[string]Policy{
		"login": {Limit: 2, Window: time.Minute},
	})
	ctx := context.Background()

	if d := limiter.TryAcquire(ctx, "login", "10.0.0.1"); !d.Allowed {
		t.Fatal("first: expected allowed")
	}
	if d := limiter.TryAcquire(ctx, "login", "10.0.0.1"); !d.Allowed {
		t.Fatal("second: expected allowed")
	}
	d := limiter.TryAcquire(ctx, "login", "10.0.0.1")
	if d.Allowed {
		t.Fatal("third: expected denied")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
	}
}
