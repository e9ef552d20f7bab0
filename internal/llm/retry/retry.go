// Package retry wraps a single fallible remote call with capped exponential
// backoff.
//
// Do retries transient failures up to Policy.MaxAttempts times, sleeping
// min(BaseDelay*2^attempt, MaxDelay) between attempts (attempt counted from
// zero), and returns non-retryable failures such as validation or
// authentication errors immediately. A Retry-After hint from the provider
// that is longer than the computed delay is honored, still capped by
// MaxDelay. Every sleep observes context cancellation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
)

var (
	// ErrRetriesExhausted wraps the last error once every attempt has failed.
	ErrRetriesExhausted = errors.New("all retries exhausted")

	errMaxAttemptsInvalid = errors.New("max attempts must be greater than 0")
	errBaseDelayInvalid   = errors.New("base delay must not be negative")
	errMaxDelayInvalid    = errors.New("max delay must be >= base delay")
)

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case. Tests inject a recording sleeper to avoid real waits.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy controls how Do retries a failing call.
//
// Delays double from BaseDelay and are capped at MaxDelay. A Retry-After hint
// from the provider replaces the computed delay when it is longer, still
// bounded by MaxDelay. Errors that llmerrors reports as non-retryable return
// after the attempt that produced them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep defaults to a timer that honors ctx cancellation.
	Sleep Sleeper

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Logger defaults to slog.Default() tagged with component=retry.
	Logger *slog.Logger
}

// DefaultPolicy returns three attempts with a one second base delay and a ten
// second cap, sleeping through SleepContext.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w, got %v", errBaseDelayInvalid, p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w, MaxDelay: %v, BaseDelay: %v", errMaxDelayInvalid, p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Backoff returns the delay before the retry following the given 0-based
// failed attempt. hint is a server Retry-After value, zero when absent.
func (p Policy) Backoff(attempt int, hint time.Duration) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if hint > delay {
		delay = min(hint, p.MaxDelay)
	}
	return delay
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. An invalid policy is replaced field by
// field with the defaults.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("retry interrupted after %d attempts: %w: %w", attempt, err, lastErr)
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				p.Logger.Debug("call succeeded after retry", "attempt", attempt+1)
			}
			return v, nil
		}
		lastErr = err

		if llmerrors.IsNonRetryable(err) {
			p.Logger.Debug("non-retryable error", "attempt", attempt+1, "error", err)
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Backoff(attempt, llmerrors.RetryAfter(err))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		p.Logger.Debug("retrying after backoff",
			"attempt", attempt+1,
			"backoff", delay,
			"error", err)

		if err := p.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w: %w", attempt+1, err, lastErr)
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(d.MaxDelay, p.BaseDelay)
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = slog.Default().With("component", "retry")
	}
	return p
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
