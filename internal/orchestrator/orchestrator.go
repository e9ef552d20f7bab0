// Package orchestrator fans one analysis request out to every specialist
// agent, requires at least one to succeed, consolidates the survivors through
// a single synthesis call and falls back to a local merge when synthesis is
// unavailable.
//
// State machine:
//
//	COLLECTING -> CONSOLIDATING -> DONE | DEGRADED
//	COLLECTING -> FAILED (every agent failed)
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-fightlens/internal/costlog"
	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/pkg/events"
)

// Event types emitted during orchestration.
const (
	EventAgentCompleted         = "orchestration.agent_completed"
	EventSynthesisDegraded      = "orchestration.synthesis_degraded"
	EventOrchestrationCompleted = "orchestration.completed"
	EventOrchestrationFailed    = "orchestration.failed"
)

const eventSource = "fightlens.orchestrator"

// Analyzer is one specialist. Analyze must never panic or block past ctx; a
// failure is reported as a result with zero confidence.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, frame domain.Frame, actx domain.AnalysisContext) domain.AgentResult
}

// Orchestrator runs requests. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	agents      []Analyzer
	synthesizer *Synthesizer
	prices      *business.PriceTable
	costs       costlog.Logger
	sink        events.EventSink
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures New.
type Option func(*Orchestrator)

// WithPriceTable sets the table used for cost estimation.
func WithPriceTable(t *business.PriceTable) Option {
	return func(o *Orchestrator) { o.prices = t }
}

// WithCostLogger receives one entry per remote call that reported usage.
func WithCostLogger(l costlog.Logger) Option {
	return func(o *Orchestrator) { o.costs = l }
}

// WithEventSink receives orchestration events.
func WithEventSink(s events.EventSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now for elapsed-time metadata.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. Agent names must be unique.
func New(agents []Analyzer, synthesizer *Synthesizer, opts ...Option) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		if _, dup := seen[a.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
		}
		seen[a.Name()] = struct{}{}
	}

	o := &Orchestrator{
		agents:      append([]Analyzer(nil), agents...),
		synthesizer: synthesizer,
		prices:      business.DefaultPriceTable(),
		costs:       costlog.NopLogger{},
		sink:        events.NewNoOpEventSink(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// AgentNames lists the configured agents in name order.
func (o *Orchestrator) AgentNames() []string {
	names := make([]string, 0, len(o.agents))
	for _, a := range o.agents {
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return names
}

// Orchestrate runs every agent against req, then consolidates.
//
// The only errors are an invalid request (wrapping domain.ErrInvalidRequest)
// and *AllAgentsFailedError. Synthesis failures are recovered with
// FallbackMerge and reported through Metadata.Degraded.
func (o *Orchestrator) Orchestrate(ctx context.Context, req domain.AnalysisRequest) (*domain.ConsolidatedAnalysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := o.now()
	ctx = transport.WithRequestID(ctx, req.ID)

	o.logger.InfoContext(ctx, "orchestration started",
		"request_id", req.ID,
		"state", domain.StateCollecting,
		"agents", len(o.agents))

	results := o.Collect(ctx, req)
	return o.Consolidate(ctx, req, results, start)
}

// Collect runs every agent concurrently and waits for all of them. One
// agent's failure never cancels its siblings. Results are sorted by agent
// name.
func (o *Orchestrator) Collect(ctx context.Context, req domain.AnalysisRequest) []domain.AgentResult {
	results := make([]domain.AgentResult, len(o.agents))

	var g errgroup.Group
	for i, a := range o.agents {
		g.Go(func() error {
			results[i] = o.RunAgent(ctx, a, req)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Agent < results[j].Agent })
	return results
}

// RunAgent runs one agent with panic isolation and emits its completion
// event.
func (o *Orchestrator) RunAgent(ctx context.Context, a Analyzer, req domain.AnalysisRequest) (res domain.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "agent panic recovered", "agent", a.Name(), "panic", r)
			res = domain.AgentResult{
				Agent:    a.Name(),
				Data:     map[string]any{},
				Insights: []string{},
				Error:    fmt.Sprintf("agent %s panicked: %v", a.Name(), r),
			}
		}
		if res.Agent == "" {
			res.Agent = a.Name()
		}
		o.emit(ctx, EventAgentCompleted, req.ID, agentCompleted{
			Agent:      res.Agent,
			Confidence: res.Confidence,
			Succeeded:  res.Succeeded(),
			Degraded:   res.Degraded,
			Error:      res.Error,
		})
	}()
	return a.Analyze(ctx, req.Frame, req.Context)
}

// Agent returns the agent registered under name.
func (o *Orchestrator) Agent(name string) (Analyzer, bool) {
	for _, a := range o.agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Consolidate applies the quorum rule to collected results, synthesizes or
// falls back, and fills metadata. start is when collection began.
func (o *Orchestrator) Consolidate(ctx context.Context, req domain.AnalysisRequest, results []domain.AgentResult, start time.Time) (*domain.ConsolidatedAnalysis, error) {
	ctx = transport.WithRequestID(ctx, req.ID)
	results = append([]domain.AgentResult(nil), results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Agent < results[j].Agent })

	meta := domain.AnalysisMetadata{
		RequestID: req.ID,
		AgentsRun: make([]string, 0, len(results)),
		State:     domain.StateCollecting,
	}
	for _, r := range results {
		meta.AgentsRun = append(meta.AgentsRun, r.Agent)
		if r.Succeeded() {
			meta.AgentsSucceeded++
		}
		cost := o.record(ctx, req.ID, transport.OpAnalysis, r.Agent, r.Model, r.Usage)
		if r.Model != "" || !r.Usage.IsZero() {
			meta.Usage.Specialists.Record(r.Usage, cost)
		}
	}

	if meta.AgentsSucceeded == 0 {
		meta.State = domain.StateFailed
		err := &AllAgentsFailedError{RequestID: req.ID, Results: results}
		o.logger.ErrorContext(ctx, "orchestration failed",
			"request_id", req.ID,
			"state", meta.State,
			"agents", len(results))
		o.emit(ctx, EventOrchestrationFailed, req.ID, orchestrationFailed{
			AgentsRun: meta.AgentsRun,
			Error:     err.Error(),
		})
		return nil, err
	}

	meta.State = domain.StateConsolidating
	consolidation := o.synthesize(ctx, req, results, &meta)

	meta.EstimatedCost = meta.Usage.TotalCost()
	meta.Elapsed = o.now().Sub(start)

	analysis := &domain.ConsolidatedAnalysis{
		Distributions: consolidation.Distributions,
		Statistics:    consolidation.Statistics,
		Summary:       consolidation.Summary,
		AgentResults:  results,
		Metadata:      meta,
	}

	o.logger.InfoContext(ctx, "orchestration completed",
		"request_id", req.ID,
		"state", meta.State,
		"agents_succeeded", meta.AgentsSucceeded,
		"agents_run", len(meta.AgentsRun),
		"degraded", meta.Degraded,
		"elapsed_ms", meta.Elapsed.Milliseconds(),
		"estimated_cost", meta.EstimatedCost.String())
	o.emit(ctx, EventOrchestrationCompleted, req.ID, orchestrationCompleted{
		State:           meta.State,
		AgentsRun:       meta.AgentsRun,
		AgentsSucceeded: meta.AgentsSucceeded,
		Degraded:        meta.Degraded,
		ElapsedMs:       meta.Elapsed.Milliseconds(),
		EstimatedCost:   meta.EstimatedCost,
	})
	return analysis, nil
}

// synthesize runs the consolidation call and returns its content, or the
// fallback merge on any failure. It moves meta to DONE or DEGRADED.
func (o *Orchestrator) synthesize(ctx context.Context, req domain.AnalysisRequest, results []domain.AgentResult, meta *domain.AnalysisMetadata) Consolidation {
	if o.synthesizer == nil {
		return o.degrade(ctx, req.ID, results, meta, ErrSynthesisDisabled)
	}
	meta.SynthesisModel = o.synthesizer.Model()

	out, err := o.synthesizer.Synthesize(ctx, req, results)
	if out.Model != "" {
		meta.SynthesisModel = out.Model
		cost := o.record(ctx, req.ID, transport.OpSynthesis, SynthesisTemplateID, out.Model, out.Usage)
		meta.Usage.Synthesis.Record(out.Usage, cost)
	}
	if err != nil {
		return o.degrade(ctx, req.ID, results, meta, err)
	}

	meta.State = domain.StateDone
	return out.Consolidation
}

func (o *Orchestrator) degrade(ctx context.Context, requestID string, results []domain.AgentResult, meta *domain.AnalysisMetadata, cause error) Consolidation {
	meta.State = domain.StateDegraded
	meta.Degraded = true
	meta.SynthesisError = cause.Error()

	o.logger.WarnContext(ctx, "synthesis failed, using fallback merge",
		"request_id", requestID,
		"error", cause)
	o.emit(ctx, EventSynthesisDegraded, requestID, synthesisDegraded{
		Model: meta.SynthesisModel,
		Error: cause.Error(),
	})
	return FallbackMerge(results)
}

// record prices one call and writes it to the cost log. Calls that never
// reached a model cost nothing and are not logged.
func (o *Orchestrator) record(ctx context.Context, requestID string, op transport.OperationType, label, model string, usage domain.UsageRecord) domain.MilliCents {
	if usage.IsZero() {
		return 0
	}
	cost := o.prices.Cost(model, usage)
	entry := costlog.Entry{
		RequestID:        requestID,
		Label:            label,
		Operation:        string(op),
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Cost:             cost,
		RecordedAt:       o.now().UTC(),
	}
	if err := o.costs.Log(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "cost log write failed", "request_id", requestID, "label", label, "error", err)
	}
	return cost
}

func (o *Orchestrator) emit(ctx context.Context, eventType, requestID string, payload any) {
	env, err := events.NewEnvelope(eventType, eventSource, requestID, payload)
	if err != nil {
		o.logger.WarnContext(ctx, "event envelope build failed", "event_type", eventType, "error", err)
		return
	}
	if err := o.sink.Append(ctx, env); err != nil {
		o.logger.WarnContext(ctx, "event append failed", "event_type", eventType, "error", err)
	}
}

type agentCompleted struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Succeeded  bool    `json:"succeeded"`
	Degraded   bool    `json:"degraded"`
	Error      string  `json:"error,omitempty"`
}

type synthesisDegraded struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

type orchestrationCompleted struct {
	State           domain.OrchestrationState `json:"state"`
	AgentsRun       []string                  `json:"agents_run"`
	AgentsSucceeded int                       `json:"agents_succeeded"`
	Degraded        bool                      `json:"degraded"`
	ElapsedMs       int64                     `json:"elapsed_ms"`
	EstimatedCost   domain.MilliCents         `json:"estimated_cost_milli_cents"`
}

type orchestrationFailed struct {
	AgentsRun []string `json:"agents_run"`
	Error     string   `json:"error"`
}
