// Package config loads the application configuration from defaults, an
// optional YAML file, FIGHTLENS_* environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	"github.com/ahrav/go-fightlens/internal/logging"
)

// Cost log drivers.
const (
	CostLogNone   = "none"
	CostLogSlog   = "slog"
	CostLogSQLite = "sqlite"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Log         logging.Config       `mapstructure:"log"`
	LLM         configuration.Config `mapstructure:"llm"`
	Agents      AgentsConfig         `mapstructure:"agents"`
	Prompts     PromptsConfig        `mapstructure:"prompts"`
	CostLog     CostLogConfig        `mapstructure:"cost_log"`
	Diagnostics DiagnosticsConfig    `mapstructure:"diagnostics"`
	Temporal    TemporalConfig       `mapstructure:"temporal"`
	Pricing     []business.Price     `mapstructure:"pricing"`
}

// AgentsConfig selects which specialists run. Empty means all of them.
type AgentsConfig struct {
	Enabled []string `mapstructure:"enabled" validate:"dive,oneof=technical tactical rules"`
}

// PromptsConfig points at an on-disk template pack. An empty Dir uses the
// templates compiled into the binary.
type PromptsConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// CostLogConfig selects where per-call cost entries go.
type CostLogConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=none slog sqlite"`
	Path   string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

// DiagnosticsConfig controls dumping of unparseable model output. An empty
// Dir disables it.
type DiagnosticsConfig struct {
	Dir string `mapstructure:"dir"`
}

// TemporalConfig locates the Temporal frontend for the worker and for
// workflow-mode analysis.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" validate:"required,hostname_port"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the application settings and the model client settings.
// API keys are not required here; the client checks them when it is built.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.LLM.Validate(false); err != nil {
		return fmt.Errorf("%w: llm: %w", ErrInvalidConfig, err)
	}
	for _, p := range c.Pricing {
		if p.Model == "" || p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("%w: pricing entry %+v", ErrInvalidConfig, p)
		}
	}
	return nil
}

// PriceTable returns the built-in prices with configured overrides applied.
func (c *Config) PriceTable() (*business.PriceTable, error) {
	t := business.DefaultPriceTable()
	for _, p := range c.Pricing {
		if err := t.Set(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}
