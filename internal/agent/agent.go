// Package agent implements the specialist analyzers. One generic Agent is
// parameterized by a Spec; the technical, tactical and rules specialists
// differ only in their data.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/retry"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/prompt"
	"github.com/ahrav/go-fightlens/internal/structured"
)

// ErrUnparseable marks a response the extractor could not recover.
var ErrUnparseable = errors.New("model response could not be parsed")

// Agent runs one specialist analysis per call. It is safe for concurrent use.
type Agent struct {
	spec      Spec
	handler   transport.Handler
	prompts   *prompt.Cache
	route     configuration.ModelRoute
	policy    retry.Policy
	extractor *structured.Extractor
	logger    *slog.Logger
}

// Option configures New.
type Option func(*agentOptions)

type agentOptions struct {
	policy *retry.Policy
	sink   structured.DiagnosticSink
	logger *slog.Logger
}

// WithRetryPolicy overrides retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *agentOptions) { o.policy = &p }
}

// WithDiagnosticSink receives responses that could not be parsed.
func WithDiagnosticSink(s structured.DiagnosticSink) Option {
	return func(o *agentOptions) { o.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *agentOptions) { o.logger = l }
}

// New creates an agent for spec that sends vision calls to route through h.
func New(spec Spec, h transport.Handler, prompts *prompt.Cache, route configuration.ModelRoute, opts ...Option) *Agent {
	o := agentOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	policy := retry.DefaultPolicy()
	if o.policy != nil {
		policy = *o.policy
	}
	logger := o.logger.With("component", "agent", "agent", spec.Name)

	exOpts := []structured.Option{
		structured.WithFallbackDistributions(spec.FallbackDistributions()),
		structured.WithLabel(spec.Name),
		structured.WithLogger(logger),
	}
	if o.sink != nil {
		exOpts = append(exOpts, structured.WithDiagnosticSink(o.sink))
	}

	return &Agent{
		spec:      spec,
		handler:   h,
		prompts:   prompts,
		route:     route,
		policy:    policy,
		extractor: structured.NewExtractor(exOpts...),
		logger:    logger,
	}
}

// Name returns the specialist name.
func (a *Agent) Name() string { return a.spec.Name }

// Analyze runs the specialist against frame. It never returns an error and
// never panics: a failed call yields a result with zero confidence, the
// error recorded, and the default payload. A reply that cannot be parsed is
// a degraded result at DefaultConfidence rather than a failure.
func (a *Agent) Analyze(ctx context.Context, frame domain.Frame, actx domain.AnalysisContext) (result domain.AgentResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent panic recovered", "panic", r)
			result = a.failed(fmt.Errorf("agent %s panicked: %v", a.spec.Name, r), domain.UsageRecord{})
		}
		a.logger.Debug("agent finished",
			"request_id", transport.RequestIDFromContext(ctx),
			"confidence", result.Confidence,
			"degraded", result.Degraded,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	if _, err := frame.Mode(); err != nil {
		return a.failed(llmerrors.NewValidationError("frame", err), domain.UsageRecord{})
	}

	req, err := a.buildRequest(ctx, frame, actx)
	if err != nil {
		return a.failed(err, domain.UsageRecord{})
	}

	resp, err := retry.Do(ctx, a.policy, func(ctx context.Context) (*transport.Response, error) {
		attempt := *req
		return a.handler.Handle(ctx, &attempt)
	})
	if err != nil {
		a.logger.Warn("analysis call failed",
			"request_id", req.RequestID,
			"error_type", string(llmerrors.Classify(err)),
			"error", err)
		return a.failed(err, domain.UsageRecord{})
	}

	return a.parse(resp)
}

func (a *Agent) buildRequest(ctx context.Context, frame domain.Frame, actx domain.AnalysisContext) (*transport.Request, error) {
	ruleSet, _ := prompt.LookupRuleSet(actx.RuleSet)
	rendered, err := a.prompts.Render(a.spec.TemplateID, prompt.AnalysisData{
		Subject:       actx.SubjectName,
		Discriminator: actx.Discriminator,
		RuleSet:       ruleSet,
		PriorResult:   actx.PriorResult,
		FocusAreas:    a.spec.FocusAreas,
		CallerFocus:   actx.FocusAreas,
		Shape:         a.spec.Shape(),
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.spec.Name, err)
	}

	return &transport.Request{
		Operation:    transport.OpAnalysis,
		Provider:     a.route.Provider,
		Model:        a.route.Model,
		RequestID:    transport.RequestIDFromContext(ctx),
		Label:        a.spec.Name,
		SystemPrompt: rendered.System,
		Prompt:       rendered.User,
		Frame:        &frame,
		MaxTokens:    a.route.MaxTokens,
		Temperature:  a.route.Temperature,
		Timeout:      a.route.Timeout,
	}, nil
}

// parse maps a response into the agent's payload shape.
func (a *Agent) parse(resp *transport.Response) domain.AgentResult {
	usage := resp.Usage.Record()
	model := resp.Model
	if model == "" {
		model = a.route.Model
	}

	res, ok := a.extractor.Extract(resp.Content)
	if !ok {
		return a.degraded(res, model, usage)
	}

	data := res.Data
	confidence := parseConfidence(data[keyConfidence])
	insights := parseInsights(data[keyInsights])
	delete(data, keyConfidence)
	delete(data, keyInsights)
	delete(data, keyDegraded)

	fillDefaults(data, a.spec.Defaults)
	if _, ok := data[keySummary].(string); !ok {
		data[keySummary] = res.Summary
	}
	if len(insights) == 0 && res.Summary != "" {
		insights = []string{res.Summary}
	}

	return domain.AgentResult{
		Agent:      a.spec.Name,
		Confidence: confidence,
		Data:       data,
		Insights:   insights,
		Model:      model,
		Usage:      usage,
	}
}

// degraded builds the result for a call that succeeded but whose reply could
// not be parsed. The payload is the spec defaults over the extractor's
// placeholder structure at DefaultConfidence, so the agent still counts
// toward the quorum; Degraded and Error record what happened.
func (a *Agent) degraded(res structured.Result, model string, usage domain.UsageRecord) domain.AgentResult {
	data := res.Data
	delete(data, keyDegraded)
	fillDefaults(data, a.spec.Defaults)

	insights := []string{}
	if res.Summary != "" && res.Summary != structured.DefaultSummary {
		insights = append(insights, res.Summary)
	}

	a.logger.Warn("analysis reply unparseable, using defaults", "model", model)
	return domain.AgentResult{
		Agent:      a.spec.Name,
		Confidence: domain.DefaultConfidence,
		Data:       data,
		Insights:   insights,
		Model:      model,
		Usage:      usage,
		Degraded:   true,
		Error:      fmt.Errorf("agent %s: %w", a.spec.Name, ErrUnparseable).Error(),
	}
}

func (a *Agent) failed(err error, usage domain.UsageRecord) domain.AgentResult {
	data := a.spec.DefaultData()
	data[keySummary] = ""
	return domain.AgentResult{
		Agent:      a.spec.Name,
		Confidence: 0,
		Data:       data,
		Insights:   []string{},
		Usage:      usage,
		Error:      err.Error(),
	}
}
