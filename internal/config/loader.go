package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	"github.com/ahrav/go-fightlens/internal/prompt"
)

// EnvPrefix prefixes every environment override, e.g. FIGHTLENS_LOG_LEVEL.
const EnvPrefix = "FIGHTLENS"

// Loader reads configuration from all sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	flags      map[string]*pflag.Flag
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), flags: make(map[string]*pflag.Flag)}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// BindFlag maps a CLI flag onto a configuration key. Flags only override
// when the user set them.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) *Loader {
	if flag != nil {
		l.flags[key] = flag
	}
	return l
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper { return l.v }

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// Load loads and validates configuration.
// Precedence (highest to lowest):
//  1. CLI flags bound with BindFlag
//  2. Environment variables (FIGHTLENS_*)
//  3. Config file (explicit path, ./fightlens.yaml or ~/.config/fightlens/config.yaml)
//  4. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("fightlens")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "fightlens"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || l.configFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	for key, flag := range l.flags {
		if err := l.v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Log.Output = os.Stderr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	d := configuration.DefaultConfig()

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.add_source", false)

	l.v.SetDefault("llm.http_timeout", d.HTTPTimeout)
	for name, p := range d.Providers {
		l.v.SetDefault("llm.providers."+name+".endpoint", p.Endpoint)
		l.v.SetDefault("llm.providers."+name+".api_key", "")
		l.v.SetDefault("llm.providers."+name+".api_key_env", p.APIKeyEnv)
	}
	for key, r := range map[string]configuration.ModelRoute{"analysis": d.Analysis, "synthesis": d.Synthesis} {
		l.v.SetDefault("llm."+key+".provider", r.Provider)
		l.v.SetDefault("llm."+key+".model", r.Model)
		l.v.SetDefault("llm."+key+".max_tokens", r.MaxTokens)
		l.v.SetDefault("llm."+key+".temperature", r.Temperature)
		l.v.SetDefault("llm."+key+".timeout", r.Timeout)
	}
	l.v.SetDefault("llm.retry.max_attempts", d.Retry.MaxAttempts)
	l.v.SetDefault("llm.retry.base_delay", d.Retry.BaseDelay)
	l.v.SetDefault("llm.retry.max_delay", d.Retry.MaxDelay)
	l.v.SetDefault("llm.rate_limit.enabled", d.RateLimit.Enabled)
	l.v.SetDefault("llm.rate_limit.tokens_per_second", d.RateLimit.TokensPerSecond)
	l.v.SetDefault("llm.rate_limit.burst_size", d.RateLimit.BurstSize)
	l.v.SetDefault("llm.rate_limit.max_wait", d.RateLimit.MaxWait)
	l.v.SetDefault("llm.circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	l.v.SetDefault("llm.circuit_breaker.failure_threshold", d.CircuitBreaker.FailureThreshold)
	l.v.SetDefault("llm.circuit_breaker.success_threshold", d.CircuitBreaker.SuccessThreshold)
	l.v.SetDefault("llm.circuit_breaker.open_timeout", d.CircuitBreaker.OpenTimeout)
	l.v.SetDefault("llm.circuit_breaker.half_open_max_calls", d.CircuitBreaker.HalfOpenMaxCalls)
	l.v.SetDefault("llm.observability.log_calls", d.Observability.LogCalls)
	l.v.SetDefault("llm.observability.redact_prompts", d.Observability.RedactPrompts)

	l.v.SetDefault("agents.enabled", []string{})

	l.v.SetDefault("prompts.dir", "")
	l.v.SetDefault("prompts.watch", false)
	l.v.SetDefault("prompts.debounce", prompt.DefaultDebounce)

	l.v.SetDefault("cost_log.driver", CostLogSlog)
	l.v.SetDefault("cost_log.path", ".fightlens/costs.db")

	l.v.SetDefault("diagnostics.dir", "")

	l.v.SetDefault("temporal.host_port", "localhost:7233")
	l.v.SetDefault("temporal.namespace", "default")
	l.v.SetDefault("temporal.task_queue", "fightlens-analysis")
}
