// Package events defines the envelope orchestration events travel in and the
// sinks that receive them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current envelope payload version.
const SchemaVersion = "1.0.0"

// Envelope wraps an event payload with routing and correlation metadata.
//
// Payload is stored as raw JSON so sinks can persist or forward events
// without knowing their concrete types. WorkflowID and RunID are empty for
// events emitted outside Temporal and are filled by the activity base when
// an event is emitted from an activity.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event, e.g. "orchestration.agent_completed".
	Type string `json:"type"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	// Version enables schema evolution of Payload.
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// RequestID correlates the event with its AnalysisRequest.
	RequestID string `json:"request_id"`

	// WorkflowID and RunID are set when the event was emitted by a
	// Temporal activity.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// Payload is the event data as JSON; its schema depends on Type.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps a fresh id, the schema version and
// the current UTC time. It fails only when payload cannot be encoded as JSON.
func NewEnvelope(eventType, source, requestID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Version:   SchemaVersion,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Payload:   raw,
	}, nil
}

// EventSink receives events. Append should return quickly; callers treat
// failures as non-fatal.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"event_id", e.ID,
		"type", e.Type,
		"source", e.Source,
		"request_id", e.RequestID,
		"payload", string(e.Payload))
	return nil
}

// MemorySink keeps appended events in memory, dropping repeats of an ID it
// has already seen. It is safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Envelope
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (s *MemorySink) Append(_ context.Context, e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[e.ID]; dup {
		return nil
	}
	s.seen[e.ID] = struct{}{}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the stored events in arrival order.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.events...)
}

// Types returns the stored event types in arrival order.
func (s *MemorySink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
