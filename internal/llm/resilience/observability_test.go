package resilience_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/resilience"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

const secretPrompt = "describe athlete jane doe's guard"

func okHandler(content string) transport.Handler {
	return transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return &transport.Response{
			Content:      content,
			FinishReason: transport.FinishStop,
			Usage:        transport.NormalizedUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	})
}

// TestLoggingMiddleware_Redaction verifies prompts only appear in logs when
// redaction is off.
func TestLoggingMiddleware_Redaction(t *testing.T) {
	tests := []struct {
		name       string
		redact     bool
		wantPrompt bool
	}{
		{name: "redacted", redact: true, wantPrompt: false},
		{name: "plain", redact: false, wantPrompt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			mw := resilience.NewLoggingMiddleware(configuration.ObservabilityConfig{LogCalls: true, RedactPrompts: tt.redact}, logger)
			h := transport.Chain(okHandler("analysis text"), mw)

			req := &transport.Request{Provider: "openai", Model: "gpt-4o", Label: "technical", Prompt: secretPrompt}
			resp, err := h.Handle(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, "analysis text", resp.Content)
			assert.NotEmpty(t, req.RequestID, "a request id is assigned")

			out := buf.String()
			assert.Contains(t, out, "model call started")
			assert.Contains(t, out, "model call completed")
			assert.Contains(t, out, `"label":"technical"`)
			assert.Equal(t, tt.wantPrompt, bytes.Contains(buf.Bytes(), []byte("jane doe")))
		})
	}
}

// TestLoggingMiddleware_Error verifies failures are logged with their class
// and returned unchanged.
func TestLoggingMiddleware_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cause := &llmerrors.ProviderError{Provider: "google", StatusCode: 503, Type: llmerrors.ErrorTypeProvider}

	failing := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, cause
	})
	h := transport.Chain(failing, resilience.NewLoggingMiddleware(configuration.ObservabilityConfig{}, logger))

	_, err := h.Handle(context.Background(), &transport.Request{RequestID: "req-1"})
	assert.Same(t, cause, err)
	assert.Contains(t, buf.String(), `"error_type":"provider_unavailable"`)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

// TestStatsCollector verifies concurrent calls are counted consistently.
func TestStatsCollector(t *testing.T) {
	c := resilience.NewStatsCollector()
	good := transport.Chain(okHandler("x"), c.Middleware())
	bad := transport.Chain(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, errors.New("boom")
	}), c.Middleware())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = good.Handle(context.Background(), &transport.Request{})
		}()
		go func() {
			defer wg.Done()
			_, _ = bad.Handle(context.Background(), &transport.Request{})
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(20), s.RequestsTotal)
	assert.Equal(t, int64(10), s.RequestsSuccess)
	assert.Equal(t, int64(10), s.RequestsError)
	assert.Equal(t, int64(150), s.TotalTokens)
	assert.Equal(t, int64(10), s.ErrorsByType["unknown"])
	assert.Equal(t, int64(10), s.ByFinishReason["stop"])
}
