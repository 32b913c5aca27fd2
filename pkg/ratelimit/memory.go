package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	start time.Time
}

// MemoryStore is an in-process CounterStore for single-instance deployments.
// Stale windows are garbage collected opportunistically during Incr.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]window
	lastGC  time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: map[string]window{},
		lastGC:  time.Now().UTC(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Incr implements CounterStore. The whole read-modify-write happens under one
// lock so the count can never be under-reported to concurrent callers.
func (s *MemoryStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastGC) > time.Minute {
		for k, w := range s.windows {
			if now.Sub(w.start) > 3*windowLen {
				delete(s.windows, k)
			}
		}
		s.lastGC = now
	}

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		w = window{count: 0, start: now}
	}
	w.count++
	s.windows[key] = w

	remaining := windowLen - now.Sub(w.start)
	return w.count, remaining, nil
}
