package goIAM

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence emitted by the engine.
type AuditEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Audit event types emitted by the engine.
const (
	// AuditLoginSuccess is an exported constant or variable used by the identity engine.
	AuditLoginSuccess = "login_success"
	// AuditLoginFailure is an exported constant or variable used by the identity engine.
	AuditLoginFailure = "login_failure"
	// AuditAccountLocked is an exported constant or variable used by the identity engine.
	AuditAccountLocked = "account_locked"
	// AuditAccountUnlocked is an exported constant or variable used by the identity engine.
	AuditAccountUnlocked = "account_unlocked"
	// AuditPasswordChanged is an exported constant or variable used by the identity engine.
	AuditPasswordChanged = "password_changed"
	// AuditPasswordReset is an exported constant or variable used by the identity engine.
	AuditPasswordReset = "password_reset"
	// AuditEmailVerified is an exported constant or variable used by the identity engine.
	AuditEmailVerified = "email_verified"
	// AuditTokenRevoked is an exported constant or variable used by the identity engine.
	AuditTokenRevoked = "token_revoked"
	// AuditGroupMutated is an exported constant or variable used by the identity engine.
	AuditGroupMutated = "group_mutated"
)

// AuditSink receives events from the dispatcher. Emit must be safe for
// concurrent use; it runs on the dispatcher goroutine, never on the request
// path.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit describes the emit operation and its observable behavior.
//
// Emit does not mutate shared global state and can be used concurrently.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
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

// ChannelSink forwards events to a channel, for tests and custom pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink describes the newchannelsink operation and its observable behavior.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit describes the emit operation and its observable behavior.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the sink's channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}
