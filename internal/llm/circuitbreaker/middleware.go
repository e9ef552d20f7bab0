package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// ErrInvalidConfig is returned by New for unusable thresholds.
var ErrInvalidConfig = errors.New("invalid circuit breaker config")

// Breakers holds one circuit breaker per provider:model key.
//
// Breakers are created on first use and share the same thresholds. The map is
// guarded by a mutex; each breaker's state machine is lock-free, so the mutex
// is held only long enough to find or create the entry.
type Breakers struct {
	cfg    configuration.CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	byKey map[string]*breaker
}

// Option configures New.
type Option func(*Breakers)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breakers) { b.now = now }
}

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breakers) { b.logger = l }
}

// New validates cfg and creates an empty breaker set.
// Every threshold and the open timeout must be positive; otherwise New
// returns an error wrapping ErrInvalidConfig.
func New(cfg configuration.CircuitBreakerConfig, opts ...Option) (*Breakers, error) {
	if cfg.FailureThreshold <= 0 || cfg.SuccessThreshold <= 0 || cfg.OpenTimeout <= 0 || cfg.HalfOpenMaxCalls <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}
	b := &Breakers{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
		byKey:  make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "circuit_breaker")
	return b, nil
}

// Key builds the breaker key for a request.
func Key(req *transport.Request) string { return req.Provider + ":" + req.Model }

func (b *Breakers) get(key string) *breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.byKey[key]
	if !ok {
		br = newBreaker(key, b.cfg, b.now, b.logger)
		b.byKey[key] = br
	}
	return br
}

// State returns the state of the breaker for key; unknown keys are closed.
func (b *Breakers) State(key string) CircuitState {
	b.mu.Lock()
	br, ok := b.byKey[key]
	b.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return CircuitState(br.state.Load())
}

// States returns every known key with its state, keys sorted.
func (b *Breakers) States() map[string]string {
	b.mu.Lock()
	keys := make([]string, 0, len(b.byKey))
	for k := range b.byKey {
		keys = append(keys, k)
	}
	b.mu.Unlock()
	sort.Strings(keys)

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = b.State(k).String()
	}
	return out
}

// Middleware rejects calls while the request's circuit is open.
// Only failures that indicate provider health count against the circuit:
// timeouts, network errors, provider outages and unclassified errors.
// Rate limits, caller cancellation and request errors do not.
func (b *Breakers) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			br := b.get(Key(req))
			release, err := br.allow(req.Provider)
			if err != nil {
				return nil, err
			}
			defer release()

			resp, err := next.Handle(ctx, req)
			switch {
			case err == nil:
				br.recordSuccess()
			case countsAsFailure(ctx, err):
				br.recordFailure()
			}
			return resp, err
		})
	}
}

func countsAsFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return false
	}
	switch llmerrors.Classify(err) {
	case llmerrors.ErrorTypeTimeout, llmerrors.ErrorTypeNetwork, llmerrors.ErrorTypeProvider, llmerrors.ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// NewMiddleware builds the middleware from cfg. A disabled configuration
// yields a pass-through middleware and nil Breakers.
func NewMiddleware(cfg configuration.CircuitBreakerConfig, opts ...Option) (transport.Middleware, *Breakers, error) {
	if !cfg.Enabled {
		return func(next transport.Handler) transport.Handler { return next }, nil, nil
	}
	b, err := New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return b.Middleware(), b, nil
}
