package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// RedisStore is a shared CounterStore for multi-instance deployments. The
// window lives as a Redis key with a TTL: the first INCR of a window attaches
// the expiry, subsequent INCRs ride the existing one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements CounterStore.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = redisKeyPrefix + key

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: incr: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: ttl: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. restored from a dump). Reattach so the
		// window cannot outlive its configured length.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}
