// Package configuration holds the settings of the model client: provider
// credentials, model routing for the analysis and synthesis calls, retry and
// rate-limit parameters, and logging options.
package configuration

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Supported provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Configuration validation errors.
var (
	ErrNoProviders       = errors.New("at least one provider must be configured")
	ErrRouteProvider     = errors.New("route references an unconfigured provider")
	ErrRouteModel        = errors.New("route model is required")
	ErrInvalidRetry      = errors.New("invalid retry configuration")
	ErrInvalidRateLimit  = errors.New("invalid rate limit configuration")
	ErrInvalidBreaker    = errors.New("invalid circuit breaker configuration")
	ErrMissingAPIKey     = errors.New("provider API key is missing")
	ErrSynthesisDeadline = errors.New("synthesis timeout must be positive")
)

// Config is the complete configuration of the model call pipeline.
//
// Providers holds credentials and endpoints keyed by provider name. Analysis
// and Synthesis route the two kinds of calls to a provider and model. The
// remaining sections tune the middleware chain. DefaultConfig returns a value
// that validates without credentials; Validate(true) additionally requires an
// API key for every routed provider.
type Config struct {
	// HTTP client configuration
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	HTTPClient  *http.Client  `json:"-" mapstructure:"-"`

	// Provider configurations keyed by provider identifier.
	Providers map[string]ProviderConfig `json:"providers" mapstructure:"providers"`

	// Analysis routes the per-agent vision calls.
	Analysis ModelRoute `json:"analysis" mapstructure:"analysis"`

	// Synthesis routes the consolidation call.
	Synthesis ModelRoute `json:"synthesis" mapstructure:"synthesis"`

	// Retry configuration for analysis calls. Synthesis is never retried.
	Retry RetryConfig `json:"retry" mapstructure:"retry"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" mapstructure:"circuit_breaker"`

	// Observability configuration
	Observability ObservabilityConfig `json:"observability" mapstructure:"observability"`
}

// ProviderConfig holds provider-specific endpoint and credentials.
type ProviderConfig struct {
	Endpoint  string            `json:"endpoint" mapstructure:"endpoint"`
	APIKey    string            `json:"-" mapstructure:"api_key"` // Sensitive, not serialized
	APIKeyEnv string            `json:"api_key_env" mapstructure:"api_key_env"`
	Headers   map[string]string `json:"headers" mapstructure:"headers"`
}

// ModelRoute selects the provider and model for one kind of call together
// with its generation limits. Timeout bounds a single attempt; for synthesis it
// is the whole budget because synthesis is never retried.
type ModelRoute struct {
	Provider    string        `json:"provider" mapstructure:"provider"`
	Model       string        `json:"model" mapstructure:"model"`
	MaxTokens   int64         `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// RetryConfig controls backoff for failed analysis calls.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// RateLimitConfig controls the local per provider:model token bucket.
// TokensPerSecond and BurstSize size the bucket; MaxWait is how long a call
// may block for a token before it is rejected.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" mapstructure:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" mapstructure:"tokens_per_second"`
	BurstSize       int     `json:"burst_size" mapstructure:"burst_size"`

	// MaxWait is how long a call may wait for a token before failing with a
	// local RateLimitError. Zero fails immediately when no token is available.
	MaxWait time.Duration `json:"max_wait" mapstructure:"max_wait"`
}

// CircuitBreakerConfig controls the per provider/model breaker that fails
// calls fast while a provider is down.
type CircuitBreakerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// FailureThreshold consecutive transient failures open the circuit.
	FailureThreshold int `json:"failure_threshold" mapstructure:"failure_threshold"`

	// SuccessThreshold successful trial calls close it again.
	SuccessThreshold int `json:"success_threshold" mapstructure:"success_threshold"`

	// OpenTimeout is how long the circuit stays open before allowing trial calls.
	OpenTimeout time.Duration `json:"open_timeout" mapstructure:"open_timeout"`

	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	HalfOpenMaxCalls int `json:"half_open_max_calls" mapstructure:"half_open_max_calls"`
}

// ObservabilityConfig controls call logging.
type ObservabilityConfig struct {
	LogCalls      bool `json:"log_calls" mapstructure:"log_calls"`
	RedactPrompts bool `json:"redact_prompts" mapstructure:"redact_prompts"`
}

// ResolveAPIKeys fills empty APIKey fields from APIKeyEnv or the provider's
// conventional environment variable.
func (c *Config) ResolveAPIKeys() {
	for name, p := range c.Providers {
		if p.APIKey != "" {
			continue
		}
		env := p.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv(name)
		}
		if env != "" {
			p.APIKey = os.Getenv(env)
		}
		c.Providers[name] = p
	}
}

// DefaultAPIKeyEnv returns the conventional API key variable for provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// Validate checks routing, retry and rate-limit settings.
// API keys are only required when requireKeys is set, so tests and dry runs
// can validate a configuration without credentials.
func (c *Config) Validate(requireKeys bool) error {
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	for label, r := range map[string]ModelRoute{"analysis": c.Analysis, "synthesis": c.Synthesis} {
		p, ok := c.Providers[r.Provider]
		if !ok {
			return fmt.Errorf("%s: %w: %q", label, ErrRouteProvider, r.Provider)
		}
		if r.Model == "" {
			return fmt.Errorf("%s: %w", label, ErrRouteModel)
		}
		if requireKeys && p.APIKey == "" {
			return fmt.Errorf("%s: %w: %s", label, ErrMissingAPIKey, r.Provider)
		}
	}
	if c.Synthesis.Timeout <= 0 {
		return ErrSynthesisDeadline
	}
	if c.Retry.MaxAttempts <= 0 || c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("%w: %+v", ErrInvalidRetry, c.Retry)
	}
	if c.RateLimit.Enabled && (c.RateLimit.TokensPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return fmt.Errorf("%w: %+v", ErrInvalidRateLimit, c.RateLimit)
	}
	if c.CircuitBreaker.Enabled {
		cb := c.CircuitBreaker
		if cb.FailureThreshold <= 0 || cb.SuccessThreshold <= 0 || cb.OpenTimeout <= 0 || cb.HalfOpenMaxCalls <= 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidBreaker, cb)
		}
	}
	return nil
}
