// Package llm assembles the model call pipeline used by the specialist agents
// and the synthesizer.
//
// Architecture:
//   - Provider-agnostic transport.Handler with one implementation per provider
//   - Middleware chain for call logging, statistics, pricing, per-model
//     circuit breaking and rate limiting
//   - Request/response only (no streaming)
//   - Retries are applied per call by the caller through retry.Do so the
//     synthesis call can run with a single attempt
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/circuitbreaker"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	"github.com/ahrav/go-fightlens/internal/llm/providers"
	"github.com/ahrav/go-fightlens/internal/llm/ratelimit"
	"github.com/ahrav/go-fightlens/internal/llm/resilience"
	"github.com/ahrav/go-fightlens/internal/llm/retry"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// Client is the assembled call pipeline used by the specialist agents and the
// synthesizer. It implements transport.Handler, so callers hold it behind that
// interface and tests can swap it for a fake.
//
// A Client is safe for concurrent use. Retries are not applied here; callers
// wrap Handle in retry.Do with RetryPolicy so the synthesis call can opt out.
type Client struct {
	config   *configuration.Config
	handler  transport.Handler
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Breakers
	stats    *resilience.StatsCollector
	prices   *business.PriceTable
	logger   *slog.Logger
}

// Option configures NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
	core   transport.Handler
	prices *business.PriceTable
}

// WithLogger sets the logger used by the call logging middleware.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithHandler replaces the provider router. Tests use it to inject fakes
// beneath the real middleware stack.
func WithHandler(h transport.Handler) Option {
	return func(o *clientOptions) { o.core = h }
}

// WithPriceTable overrides the built-in price table.
func WithPriceTable(t *business.PriceTable) Option {
	return func(o *clientOptions) { o.prices = t }
}

// NewClient validates cfg and builds the pipeline:
// logging → statistics → pricing → circuit breaker → rate limit → provider router.
func NewClient(cfg *configuration.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.prices == nil {
		o.prices = business.DefaultPriceTable()
	}

	cfg.ResolveAPIKeys()
	if err := cfg.Validate(o.core == nil); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	core := o.core
	if core == nil {
		router, err := providers.NewRouter(cfg.Providers, newHTTPClient(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize router: %w", err)
		}
		core = router
	}

	rl, limiter, err := ratelimit.NewMiddleware(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	cb, breakers, err := circuitbreaker.NewMiddleware(cfg.CircuitBreaker, circuitbreaker.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize circuit breaker: %w", err)
	}

	stats := resilience.NewStatsCollector()
	middlewares := make([]transport.Middleware, 0, 5)
	if cfg.Observability.LogCalls {
		middlewares = append(middlewares, resilience.NewLoggingMiddleware(cfg.Observability, o.logger))
	}
	middlewares = append(middlewares,
		stats.Middleware(),
		business.NewPricingMiddleware(o.prices),
		cb,
		rl,
	)

	return &Client{
		config:   cfg,
		handler:  transport.Chain(core, middlewares...),
		limiter:  limiter,
		breakers: breakers,
		stats:    stats,
		prices:   o.prices,
		logger:   o.logger.With("component", "llm"),
	}, nil
}

func newHTTPClient(cfg *configuration.Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          configuration.DefaultMaxIdleConns,
			IdleConnTimeout:       configuration.DefaultIdleTimeoutSeconds * time.Second,
			TLSHandshakeTimeout:   configuration.DefaultTLSTimeoutSeconds * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.HTTPTimeout,
	}
}

// Handle sends one call through the pipeline.
func (c *Client) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return c.handler.Handle(ctx, req)
}

// Config returns the validated configuration.
func (c *Client) Config() *configuration.Config { return c.config }

// Prices returns the table used for cost estimation.
func (c *Client) Prices() *business.PriceTable { return c.prices }

// Stats returns a snapshot of call statistics gathered by the statistics
// middleware. Rejections from the circuit breaker and rate limiter are counted
// as failures because they sit beneath it.
func (c *Client) Stats() resilience.Stats { return c.stats.Snapshot() }

// RateLimitStats returns limiter counters; zero when rate limiting is off.
func (c *Client) RateLimitStats() ratelimit.Stats {
	if c.limiter == nil {
		return ratelimit.Stats{}
	}
	return c.limiter.Stats()
}

// CircuitStates returns the state of every breaker seen so far, keyed by
// "provider:model"; nil when circuit breaking is off.
func (c *Client) CircuitStates() map[string]string {
	if c.breakers == nil {
		return nil
	}
	return c.breakers.States()
}

// RetryPolicy converts the retry configuration for use with retry.Do.
func (c *Client) RetryPolicy() retry.Policy {
	return RetryPolicy(c.config.Retry, c.logger)
}

// RetryPolicy builds a retry.Policy from configuration, keeping defaults for
// unset fields.
func RetryPolicy(cfg configuration.RetryConfig, logger *slog.Logger) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	p.Logger = logger
	return p
}
