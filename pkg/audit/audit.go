// Package audit defines the append-only audit event sink consumed by the
// authentication core. Persistence of events is owned elsewhere; this package
// only shapes events and hands them to a pluggable sink.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action types emitted by the authentication core.
const (
	ActionAccountLocked              = "ACCOUNT_LOCKED"
	ActionRateLimitExceeded          = "RATE_LIMIT_EXCEEDED"
	ActionSessionReplaced            = "SESSION_REPLACED"
	ActionPasswordResetRequested     = "PASSWORD_RESET_REQUESTED"
	ActionPasswordResetFailed        = "PASSWORD_RESET_FAILED"
	ActionPasswordResetCompleted     = "PASSWORD_RESET_COMPLETED"
	ActionPasswordResetSessionsInval = "PASSWORD_RESET_SESSIONS_INVALIDATED"
)

// Event is a single audit record. AccountID and SessionID are empty when the
// event precedes identity resolution (rate limiting acts before
// authentication, so its events deliberately carry no identity).
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	AccountID string         `json:"account_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an event with a fresh ULID and timestamp.
func NewEvent(action string) Event {
	now := time.Now().UTC()
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Timestamp: now,
		Action:    action,
	}
}

// Sink receives audit events. Implementations must be safe for concurrent
// use and must never block the caller beyond the supplied context.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events on a channel for an out-of-process consumer.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes newline-delimited JSON events to a writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
