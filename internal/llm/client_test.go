package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm"
	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/logging"
)

func fakeCore(content string) transport.Handler {
	return transport.HandlerFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{
			Content: content,
			Model:   req.Model,
			Usage:   transport.NormalizedUsage{PromptTokens: 1_000_000, CompletionTokens: 0},
		}, nil
	})
}

// TestNewClient_PipelinePricesCalls verifies injected handlers run beneath the
// pricing and statistics middleware.
func TestNewClient_PipelinePricesCalls(t *testing.T) {
	prices, err := business.NewPriceTable(business.Price{Model: "gpt-4o", InputPerMillion: 42})
	require.NoError(t, err)

	c, err := llm.NewClient(configuration.DefaultConfig(),
		llm.WithHandler(fakeCore(`{"summary":"ok"}`)),
		llm.WithPriceTable(prices),
		llm.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	resp, err := c.Handle(context.Background(), &transport.Request{Provider: "openai", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, domain.MilliCents(42), resp.EstimatedCost)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.RequestsSuccess)
	assert.Equal(t, int64(42), stats.TotalCost)
}

// TestNewClient_RateLimited verifies the limiter sits in the chain.
func TestNewClient_RateLimited(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.RateLimit = configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 0.001, BurstSize: 1}

	c, err := llm.NewClient(cfg, llm.WithHandler(fakeCore("x")), llm.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	req := &transport.Request{Provider: "openai", Model: "gpt-4o"}
	_, err = c.Handle(context.Background(), req)
	require.NoError(t, err)

	_, err = c.Handle(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, llmerrors.ErrRateLimitExceeded)
	assert.Equal(t, int64(1), c.RateLimitStats().Limited)
}

// TestNewClient_CircuitBreaker verifies repeated provider outages open the
// circuit for that model only.
func TestNewClient_CircuitBreaker(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.CircuitBreaker.FailureThreshold = 2

	calls := 0
	core := transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		calls++
		return nil, &llmerrors.ProviderError{Provider: "openai", StatusCode: 503, Type: llmerrors.ErrorTypeProvider}
	})
	c, err := llm.NewClient(cfg, llm.WithHandler(core), llm.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	req := &transport.Request{Provider: "openai", Model: "gpt-4o"}
	for range 3 {
		_, err = c.Handle(context.Background(), req)
		require.Error(t, err)
	}
	assert.ErrorIs(t, err, llmerrors.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]string{"openai:gpt-4o": "open"}, c.CircuitStates())
}

// TestNewClient_InvalidConfig verifies configuration errors surface.
func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.Synthesis.Provider = "mistral"

	_, err := llm.NewClient(cfg, llm.WithHandler(fakeCore("x")))
	assert.ErrorIs(t, err, configuration.ErrRouteProvider)
}

// TestRetryPolicy verifies configured values override defaults.
func TestRetryPolicy(t *testing.T) {
	p := llm.RetryPolicy(configuration.RetryConfig{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}, nil)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.BaseDelay)
	assert.Equal(t, configuration.DefaultMaxDelay, p.MaxDelay)
}
