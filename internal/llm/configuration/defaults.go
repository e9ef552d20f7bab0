package configuration

import "time"

// HTTP and connection constants.
const (
	DefaultMaxIdleConns       = 100
	DefaultIdleTimeoutSeconds = 90
	DefaultTLSTimeoutSeconds  = 10
	DefaultHTTPTimeoutSeconds = 60
)

// Routing constants.
const (
	DefaultAnalysisModel       = "gpt-4o"
	DefaultSynthesisModel      = "gpt-4o-mini"
	DefaultAnalysisMaxTokens   = 2000
	DefaultSynthesisMaxTokens  = 3000
	DefaultAnalysisTemperature = 0.3
	DefaultAnalysisTimeout     = 60 * time.Second
	DefaultSynthesisTimeout    = 30 * time.Second
)

// Retry constants.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 5
	DefaultBurstSize       = 10
	DefaultRateLimitWait   = 5 * time.Second
)

// Circuit breaker constants.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenMaxCalls = 1
)

// DefaultConfig returns a configuration routing both calls to OpenAI with
// the documented retry and timeout defaults. API keys are read from the
// conventional environment variables by ResolveAPIKeys.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Providers: map[string]ProviderConfig{
			ProviderOpenAI:    {APIKeyEnv: "OPENAI_API_KEY"},
			ProviderAnthropic: {Endpoint: "https://api.anthropic.com/v1", APIKeyEnv: "ANTHROPIC_API_KEY"},
			ProviderGoogle:    {Endpoint: "https://generativelanguage.googleapis.com/v1beta", APIKeyEnv: "GOOGLE_API_KEY"},
		},
		Analysis: ModelRoute{
			Provider:    ProviderOpenAI,
			Model:       DefaultAnalysisModel,
			MaxTokens:   DefaultAnalysisMaxTokens,
			Temperature: DefaultAnalysisTemperature,
			Timeout:     DefaultAnalysisTimeout,
		},
		Synthesis: ModelRoute{
			Provider:    ProviderOpenAI,
			Model:       DefaultSynthesisModel,
			MaxTokens:   DefaultSynthesisMaxTokens,
			Temperature: DefaultAnalysisTemperature,
			Timeout:     DefaultSynthesisTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
			MaxDelay:    DefaultMaxDelay,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
			MaxWait:         DefaultRateLimitWait,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenMaxCalls: DefaultHalfOpenMaxCalls,
		},
		Observability: ObservabilityConfig{
			LogCalls:      true,
			RedactPrompts: true,
		},
	}
}
