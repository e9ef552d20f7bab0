// Package circuitbreaker fails model calls fast while a provider is down.
//
// One breaker exists per "provider:model" key. Consecutive transient
// failures open it; after OpenTimeout (plus up to 10% jitter) a bounded number
// of half-open trial calls decide whether it closes again or reopens. Rejected
// calls return a retryable ProviderError wrapping ErrCircuitOpen, so callers
// back off through their normal retry policy.
package circuitbreaker

import (
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
)

// jitterDivisor caps the open-timeout jitter at a tenth of the timeout.
const jitterDivisor = 10

// CircuitState represents the current state of a circuit breaker.
type CircuitState int32

const (
	// StateClosed allows requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests for testing.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is the state machine for one key. All fields are atomics so the
// hot path takes no lock.
type breaker struct {
	key              string
	state            atomic.Int32
	failures         atomic.Int32
	successes        atomic.Int32
	lastFailureTime  atomic.Int64
	halfOpenInFlight atomic.Int32

	cfg    configuration.CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger
}

func newBreaker(key string, cfg configuration.CircuitBreakerConfig, now func() time.Time, logger *slog.Logger) *breaker {
	b := &breaker{key: key, cfg: cfg, now: now, logger: logger}
	b.state.Store(int32(StateClosed))
	return b
}

func (b *breaker) jitter() time.Duration {
	jit := b.cfg.OpenTimeout / jitterDivisor
	if jit <= 0 {
		return 0
	}
	//nolint:gosec // Weak random is fine for jitter.
	return time.Duration(rand.Int63n(int64(jit)))
}

// allow reports whether a call may proceed. The returned release function
// must be called when an allowed call completes.
func (b *breaker) allow(provider string) (release func(), err error) {
	noop := func() {}
	state := CircuitState(b.state.Load())

	if state == StateClosed {
		return noop, nil
	}

	if state == StateOpen {
		last := time.Unix(0, b.lastFailureTime.Load())
		if b.now().Sub(last) <= b.cfg.OpenTimeout+b.jitter() {
			return noop, b.rejection(provider, "CIRCUIT_OPEN")
		}
		b.transition(StateOpen, StateHalfOpen)
	}

	for {
		current := b.halfOpenInFlight.Load()
		if int(current) >= b.cfg.HalfOpenMaxCalls {
			return noop, b.rejection(provider, "CIRCUIT_HALF_OPEN_LIMIT")
		}
		if b.halfOpenInFlight.CompareAndSwap(current, current+1) {
			return func() {
				for {
					cur := b.halfOpenInFlight.Load()
					if cur == 0 || b.halfOpenInFlight.CompareAndSwap(cur, cur-1) {
						return
					}
				}
			}, nil
		}
	}
}

func (b *breaker) rejection(provider, code string) error {
	return &llmerrors.ProviderError{
		Provider: provider,
		Code:     code,
		Message:  b.key + ": " + llmerrors.ErrCircuitOpen.Error(),
		Type:     llmerrors.ErrorTypeProvider,
		Cause:    llmerrors.ErrCircuitOpen,
	}
}

func (b *breaker) recordSuccess() {
	switch CircuitState(b.state.Load()) {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		if int(b.successes.Add(1)) >= b.cfg.SuccessThreshold {
			b.transition(StateHalfOpen, StateClosed)
		}
	}
}

func (b *breaker) recordFailure() {
	b.lastFailureTime.Store(b.now().UnixNano())

	switch CircuitState(b.state.Load()) {
	case StateClosed:
		if int(b.failures.Add(1)) >= b.cfg.FailureThreshold {
			b.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen)
	}
}

// transition moves from one state to another if the breaker is still in
// from, resetting the counters.
func (b *breaker) transition(from, to CircuitState) {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.halfOpenInFlight.Store(0)

	b.logger.Info("circuit breaker state transition",
		"key", b.key,
		"from", from.String(),
		"to", to.String())
}
