// Package ratelimit provides a per provider/model token-bucket middleware.
//
// One limiter exists per "provider:model" key so concurrent specialist
// agents share a bucket for the model they all call, while the synthesis
// model keeps its own. A request waits up to MaxWait for a token; when none
// arrives in time the middleware fails with a local RateLimitError that the
// retry policy treats as transient.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

var errInvalidConfig = errors.New("tokens per second and burst size must be positive")

// Limiter holds one token bucket per provider:model key.
//
// Buckets are created lazily on first use and live for the life of the
// Limiter. Acquire waits up to MaxWait for a token; a call that would wait
// longer is rejected with a local RateLimitError instead of queueing, so a
// saturated model fails fast and the caller's retry policy decides what next.
type Limiter struct {
	cfg    configuration.RateLimitConfig
	mu     sync.RWMutex
	byKey  map[string]*rate.Limiter
	logger *slog.Logger

	allowed atomic.Int64
	limited atomic.Int64
}

// Stats reports limiter counters since construction. Allowed counts calls
// that obtained a token and Limited counts rejections. Keys is the number of
// buckets created so far.
type Stats struct {
	Allowed int64 `json:"allowed"`
	Limited int64 `json:"limited"`
	Keys    int   `json:"keys"`
}

// New creates a Limiter. It returns an error when the configuration cannot
// produce a usable bucket.
func New(cfg configuration.RateLimitConfig) (*Limiter, error) {
	if cfg.TokensPerSecond <= 0 || cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("%w: rate=%v burst=%d", errInvalidConfig, cfg.TokensPerSecond, cfg.BurstSize)
	}
	return &Limiter{
		cfg:    cfg,
		byKey:  make(map[string]*rate.Limiter),
		logger: slog.Default().With("component", "ratelimit"),
	}, nil
}

// Key builds the bucket key for a request.
func Key(req *transport.Request) string { return req.Provider + ":" + req.Model }

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.byKey[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.byKey[key]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.cfg.TokensPerSecond), l.cfg.BurstSize)
	l.byKey[key] = b
	return b
}

// Acquire blocks until a token for req's key is available, ctx is done, or
// the configured maximum wait would be exceeded.
// Returns a *RateLimitError with LocalLimit set when rejected, or ctx.Err()
// when the caller gave up first.
func (l *Limiter) Acquire(ctx context.Context, req *transport.Request) error {
	key := Key(req)
	b := l.bucket(key)

	if l.cfg.MaxWait <= 0 {
		if b.Allow() {
			l.allowed.Add(1)
			return nil
		}
		return l.reject(req, b)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.MaxWait)
	defer cancel()
	if err := b.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return l.reject(req, b)
	}
	l.allowed.Add(1)
	return nil
}

// reject builds the error for a request that could not get a token.
// The reservation is cancelled so the check does not consume capacity.
func (l *Limiter) reject(req *transport.Request, b *rate.Limiter) error {
	l.limited.Add(1)
	r := b.Reserve()
	delay := r.Delay()
	r.Cancel()

	retryAfter := int(math.Ceil(delay.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	l.logger.Debug("local rate limit exceeded",
		"provider", req.Provider,
		"model", req.Model,
		"retry_after", retryAfter)
	return &llmerrors.RateLimitError{
		Provider:   req.Provider,
		Model:      req.Model,
		RetryAfter: retryAfter,
		LocalLimit: true,
	}
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	keys := len(l.byKey)
	l.mu.RUnlock()
	return Stats{Allowed: l.allowed.Load(), Limited: l.limited.Load(), Keys: keys}
}

// Middleware returns a transport.Middleware that acquires a token before
// calling the next handler.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := l.Acquire(ctx, req); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// NewMiddleware is a convenience wrapper for New(cfg).Middleware().
// A disabled configuration yields a pass-through middleware.
func NewMiddleware(cfg configuration.RateLimitConfig) (transport.Middleware, *Limiter, error) {
	if !cfg.Enabled {
		return func(next transport.Handler) transport.Handler { return next }, nil, nil
	}
	l, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return l.Middleware(), l, nil
}
