// Package resilience provides cross-cutting middleware for the model call
// pipeline: structured call logging with prompt redaction and in-memory call
// statistics.
package resilience

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// ContentTruncationLimit is the maximum number of characters of response
// content included in logs.
const ContentTruncationLimit = 200

// LoggingMiddleware logs the start and outcome of every model call.
// Prompt and response bodies are replaced by their lengths when redaction
// is enabled; image payloads are never logged.
type LoggingMiddleware struct {
	logger        *slog.Logger
	redactPrompts bool
}

// NewLoggingMiddleware creates a transport.Middleware for call logging.
// A nil logger falls back to slog.Default.
func NewLoggingMiddleware(cfg configuration.ObservabilityConfig, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	lm := &LoggingMiddleware{
		logger:        logger.With("component", "llm"),
		redactPrompts: cfg.RedactPrompts,
	}
	return lm.Middleware()
}

// Middleware returns the wrapping function.
func (m *LoggingMiddleware) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.RequestID == "" {
				req.RequestID = uuid.NewString()
			}

			m.logRequest(ctx, req)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			if err != nil {
				m.logError(ctx, req, err, duration)
			} else if resp != nil {
				if resp.Usage.LatencyMs == 0 {
					resp.Usage.LatencyMs = duration.Milliseconds()
				}
				m.logSuccess(ctx, req, resp, duration)
			}
			return resp, err
		})
	}
}

func (m *LoggingMiddleware) baseFields(req *transport.Request) []any {
	return []any{
		"request_id", req.RequestID,
		"label", req.Label,
		"provider", req.Provider,
		"model", req.Model,
		"operation", req.Operation,
	}
}

func (m *LoggingMiddleware) logRequest(ctx context.Context, req *transport.Request) {
	fields := append(m.baseFields(req),
		"max_tokens", req.MaxTokens,
		"temperature", req.Temperature,
		"timeout_seconds", req.Timeout.Seconds(),
	)

	if req.Frame != nil {
		if mode, err := req.Frame.Mode(); err == nil {
			fields = append(fields, "frame_mode", mode, "frame_bytes", len(req.Frame.Data))
		}
	}

	if m.redactPrompts {
		fields = append(fields, "prompt_length", len(req.Prompt))
		if req.SystemPrompt != "" {
			fields = append(fields, "system_prompt_length", len(req.SystemPrompt))
		}
	} else {
		fields = append(fields, "prompt", req.Prompt)
		if req.SystemPrompt != "" {
			fields = append(fields, "system_prompt", req.SystemPrompt)
		}
	}

	m.logger.InfoContext(ctx, "model call started", fields...)
}

func (m *LoggingMiddleware) logError(ctx context.Context, req *transport.Request, err error, duration time.Duration) {
	fields := append(m.baseFields(req),
		"duration_ms", duration.Milliseconds(),
		"error_type", string(llmerrors.Classify(err)),
		"error", err.Error(),
	)
	m.logger.ErrorContext(ctx, "model call failed", fields...)
}

func (m *LoggingMiddleware) logSuccess(ctx context.Context, req *transport.Request, resp *transport.Response, duration time.Duration) {
	fields := append(m.baseFields(req),
		"duration_ms", duration.Milliseconds(),
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"cost_milli_cents", int64(resp.EstimatedCost),
		"provider_request_ids", strings.Join(resp.ProviderRequestIDs, ","),
	)

	if m.redactPrompts {
		fields = append(fields, "response_length", len(resp.Content))
	} else {
		fields = append(fields, "response_preview", truncate(resp.Content, ContentTruncationLimit))
	}

	m.logger.InfoContext(ctx, "model call completed", fields...)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Stats is a point-in-time view of pipeline counters. TotalCost is in
// milli-cents and sums Response.EstimatedCost over successful calls.
type Stats struct {
	RequestsTotal    int64            `json:"requests_total"`
	RequestsSuccess  int64            `json:"requests_success"`
	RequestsError    int64            `json:"requests_error"`
	ErrorsByType     map[string]int64 `json:"errors_by_type"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
	TotalTokens      int64            `json:"total_tokens"`
	TotalCost        int64            `json:"total_cost_milli_cents"`
	ByFinishReason   map[string]int64 `json:"by_finish_reason"`
}

// StatsCollector tracks call statistics in memory. It is safe for
// concurrent use since specialist calls run in parallel.
type StatsCollector struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsCollector returns an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{stats: Stats{
		ErrorsByType:   make(map[string]int64),
		ByFinishReason: make(map[string]int64),
	}}
}

// Middleware records every call passing through it.
func (c *StatsCollector) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			start := time.Now()
			resp, err := next.Handle(ctx, req)
			c.observe(resp, err, time.Since(start))
			return resp, err
		})
	}
}

func (c *StatsCollector) observe(resp *transport.Response, err error, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.stats
	s.RequestsTotal++
	if err != nil {
		s.RequestsError++
		s.ErrorsByType[string(llmerrors.Classify(err))]++
	} else {
		s.RequestsSuccess++
		if resp != nil {
			s.TotalTokens += resp.Usage.Record().TotalTokens
			s.TotalCost += int64(resp.EstimatedCost)
			s.ByFinishReason[string(resp.FinishReason)]++
		}
	}

	n := float64(s.RequestsTotal)
	s.AverageLatencyMs = (s.AverageLatencyMs*(n-1) + float64(d.Milliseconds())) / n
}

// Snapshot returns a copy of the current statistics.
func (c *StatsCollector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.ErrorsByType = make(map[string]int64, len(c.stats.ErrorsByType))
	for k, v := range c.stats.ErrorsByType {
		out.ErrorsByType[k] = v
	}
	out.ByFinishReason = make(map[string]int64, len(c.stats.ByFinishReason))
	for k, v := range c.stats.ByFinishReason {
		out.ByFinishReason[k] = v
	}
	return out
}
