// Package worker assembles the analysis stack from configuration and hosts
// it in a Temporal worker. Initialization lives here so the orchestration
// packages stay free of wiring concerns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/ahrav/go-fightlens/internal/agent"
	"github.com/ahrav/go-fightlens/internal/config"
	"github.com/ahrav/go-fightlens/internal/costlog"
	"github.com/ahrav/go-fightlens/internal/llm"
	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/internal/prompt"
	"github.com/ahrav/go-fightlens/internal/structured"
	"github.com/ahrav/go-fightlens/pkg/events"
)

// Components is the assembled analysis stack.
type Components struct {
	Client       *llm.Client
	Prompts      *prompt.Cache
	Orchestrator *orchestrator.Orchestrator
	Events       events.EventSink

	closers []func() error
}

// Close releases the cost log and flushes diagnostic dumps.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Option customizes Initialize.
type Option func(*setupOptions)

type setupOptions struct {
	handler transport.Handler
	sink    events.EventSink
}

// WithHandler replaces the provider router, e.g. with a fake in tests.
func WithHandler(h transport.Handler) Option {
	return func(o *setupOptions) { o.handler = h }
}

// WithEventSink overrides the default log event sink.
func WithEventSink(s events.EventSink) Option {
	return func(o *setupOptions) { o.sink = s }
}

// Initialize builds the client, prompt cache, cost log, agents, synthesizer
// and orchestrator described by cfg. Call Close on the result when done.
func Initialize(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Components, error) {
	o := setupOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	prices, err := cfg.PriceTable()
	if err != nil {
		return nil, fmt.Errorf("failed to build price table: %w", err)
	}

	c.Client, err = InitializeLLMClient(&cfg.LLM, prices, logger, o.handler)
	if err != nil {
		return nil, err
	}

	c.Prompts, err = InitializePrompts(cfg.Prompts, logger)
	if err != nil {
		return nil, err
	}

	var sink structured.DiagnosticSink
	if cfg.Diagnostics.Dir != "" {
		fileSink, err := structured.NewFileSink(cfg.Diagnostics.Dir, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, fileSink.Close)
		sink = fileSink
	}

	costs, closeCosts, err := InitializeCostLogger(ctx, cfg.CostLog, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeCosts)

	c.Events = o.sink
	if c.Events == nil {
		c.Events = events.NewLogSink(logger)
	}

	agents, err := InitializeAgents(cfg.Agents, c.Client, c.Prompts, sink, logger)
	if err != nil {
		return nil, err
	}

	c.Orchestrator, err = orchestrator.New(agents,
		orchestrator.NewSynthesizer(c.Client, c.Prompts, cfg.LLM.Synthesis, sink, logger),
		orchestrator.WithPriceTable(prices),
		orchestrator.WithCostLogger(costs),
		orchestrator.WithEventSink(c.Events),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	ok = true
	return c, nil
}

// InitializeLLMClient creates the model client. A non-nil handler replaces
// the provider router and lifts the API key requirement.
func InitializeLLMClient(cfg *configuration.Config, prices *business.PriceTable, logger *slog.Logger, handler transport.Handler) (*llm.Client, error) {
	opts := []llm.Option{llm.WithPriceTable(prices), llm.WithLogger(logger)}
	if handler != nil {
		opts = append(opts, llm.WithHandler(handler))
	}
	client, err := llm.NewClient(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

// InitializePrompts loads the template pack from cfg.Dir, or the embedded
// pack when Dir is empty, failing fast on a broken template.
func InitializePrompts(cfg config.PromptsConfig, logger *slog.Logger) (*prompt.Cache, error) {
	var fsys fs.FS
	if cfg.Dir != "" {
		fsys = os.DirFS(cfg.Dir)
	}
	cache := prompt.NewCache(fsys, prompt.WithCacheLogger(logger))
	if err := cache.Load(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return cache, nil
}

// StartPromptWatcher reloads cache on template edits until ctx is done.
// It does nothing unless watching is enabled for an on-disk pack.
func StartPromptWatcher(ctx context.Context, cfg config.PromptsConfig, cache *prompt.Cache, logger *slog.Logger) {
	if !cfg.Watch || cfg.Dir == "" {
		return
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = prompt.DefaultDebounce
	}
	w := prompt.NewWatcher(cache, cfg.Dir, prompt.WithDebounce(debounce), prompt.WithWatcherLogger(logger))
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("prompt watcher stopped", "dir", cfg.Dir, "error", err)
		}
	}()
}

// InitializeCostLogger returns the configured cost log and its closer.
func InitializeCostLogger(ctx context.Context, cfg config.CostLogConfig, logger *slog.Logger) (costlog.Logger, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.CostLogSQLite:
		l, err := costlog.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open cost log: %w", err)
		}
		return l, l.Close, nil
	case config.CostLogSlog:
		return costlog.NewSlogLogger(logger), noop, nil
	default:
		return costlog.NopLogger{}, noop, nil
	}
}

// InitializeAgents builds the enabled specialists, all of them when none
// are listed.
func InitializeAgents(cfg config.AgentsConfig, client *llm.Client, prompts *prompt.Cache, sink structured.DiagnosticSink, logger *slog.Logger) ([]orchestrator.Analyzer, error) {
	opts := []agent.Option{
		agent.WithRetryPolicy(client.RetryPolicy()),
		agent.WithLogger(logger),
	}
	if sink != nil {
		opts = append(opts, agent.WithDiagnosticSink(sink))
	}

	var agents []orchestrator.Analyzer
	for _, spec := range agent.DefaultSpecs() {
		if len(cfg.Enabled) > 0 && !slices.Contains(cfg.Enabled, spec.Name) {
			continue
		}
		agents = append(agents, agent.New(spec, client, prompts, client.Config().Analysis, opts...))
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: enabled %v", orchestrator.ErrNoAgents, cfg.Enabled)
	}
	return agents, nil
}
