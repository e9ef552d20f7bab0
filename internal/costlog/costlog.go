// Package costlog records the estimated cost of every remote model call.
package costlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// Entry is the cost attributable to one remote call.
type Entry struct {
	RequestID        string            `json:"request_id"`
	Label            string            `json:"label"` // agent name or "synthesis"
	Operation        string            `json:"operation"`
	Model            string            `json:"model"`
	PromptTokens     int64             `json:"prompt_tokens"`
	CompletionTokens int64             `json:"completion_tokens"`
	Cost             domain.MilliCents `json:"cost_milli_cents"`
	RecordedAt       time.Time         `json:"recorded_at"`
}

// Logger receives cost entries. Failures are reported to the caller, which
// treats them as non-fatal.
type Logger interface {
	Log(ctx context.Context, e Entry) error
}

// NopLogger discards entries.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(context.Context, Entry) error { return nil }

// SlogLogger writes each entry as a structured log line.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a Logger backed by logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger.With("component", "costlog")}
}

// Log implements Logger.
func (l *SlogLogger) Log(ctx context.Context, e Entry) error {
	l.logger.InfoContext(ctx, "model call cost",
		"request_id", e.RequestID,
		"label", e.Label,
		"operation", e.Operation,
		"model", e.Model,
		"prompt_tokens", e.PromptTokens,
		"completion_tokens", e.CompletionTokens,
		"cost_milli_cents", int64(e.Cost),
		"cost", e.Cost.String())
	return nil
}
