package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/prompt"
	"github.com/ahrav/go-fightlens/internal/structured"
)

// SynthesisTemplateID is the prompt template used for consolidation.
const SynthesisTemplateID = "synthesis"

const distributionsKey = "distributions"

// ErrSynthesisUnparseable marks a synthesis response that only yielded the
// extractor's fallback structure.
var ErrSynthesisUnparseable = errors.New("synthesis response could not be parsed")

// SynthesisOutcome is the result of one synthesis attempt. Usage and Model
// are set whenever the remote call returned, even when parsing failed.
type SynthesisOutcome struct {
	Consolidation Consolidation
	Model         string
	Usage         domain.UsageRecord
}

// Synthesizer makes the single consolidation call.
type Synthesizer struct {
	handler   transport.Handler
	prompts   *prompt.Cache
	route     configuration.ModelRoute
	extractor *structured.Extractor
	logger    *slog.Logger
}

// NewSynthesizer creates a Synthesizer sending text-only calls to route.
// route.Timeout bounds the whole call; it must be positive.
func NewSynthesizer(h transport.Handler, prompts *prompt.Cache, route configuration.ModelRoute, sink structured.DiagnosticSink, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if route.Timeout <= 0 {
		route.Timeout = configuration.DefaultSynthesisTimeout
	}
	logger = logger.With("component", "synthesis")

	exOpts := []structured.Option{
		structured.WithLabel(SynthesisTemplateID),
		structured.WithLogger(logger),
	}
	if sink != nil {
		exOpts = append(exOpts, structured.WithDiagnosticSink(sink))
	}

	return &Synthesizer{
		handler:   h,
		prompts:   prompts,
		route:     route,
		extractor: structured.NewExtractor(exOpts...),
		logger:    logger,
	}
}

// Model returns the configured synthesis model.
func (s *Synthesizer) Model() string { return s.route.Model }

// Synthesize makes exactly one attempt. A timeout, a remote error, or a
// response that only parses to the fallback structure is returned as an
// error; the caller decides how to recover.
func (s *Synthesizer) Synthesize(ctx context.Context, req domain.AnalysisRequest, results []domain.AgentResult) (SynthesisOutcome, error) {
	rendered, err := s.prompts.Render(SynthesisTemplateID, synthesisData(req, results))
	if err != nil {
		return SynthesisOutcome{}, fmt.Errorf("render synthesis prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.route.Timeout)
	defer cancel()

	resp, err := s.handler.Handle(ctx, &transport.Request{
		Operation:    transport.OpSynthesis,
		Provider:     s.route.Provider,
		Model:        s.route.Model,
		RequestID:    req.ID,
		Label:        SynthesisTemplateID,
		SystemPrompt: rendered.System,
		Prompt:       rendered.User,
		MaxTokens:    s.route.MaxTokens,
		Temperature:  s.route.Temperature,
		Timeout:      s.route.Timeout,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return SynthesisOutcome{}, fmt.Errorf("synthesis call: %w", err)
	}

	out := SynthesisOutcome{Model: resp.Model, Usage: resp.Usage.Record()}
	if out.Model == "" {
		out.Model = s.route.Model
	}

	res, ok := s.extractor.Extract(resp.Content)
	if !ok {
		return out, ErrSynthesisUnparseable
	}
	out.Consolidation = consolidationFrom(res)
	if out.Consolidation.Summary == "" {
		out.Consolidation.Summary = fallbackSummary(results)
	}
	return out, nil
}

// consolidationFrom maps the synthesis object into a Consolidation. The
// expected shape is {"summary", "distributions": {...}, "statistics": {...}};
// distributions found elsewhere are used only when that object is missing.
func consolidationFrom(res structured.Result) Consolidation {
	dists := make(map[string]domain.Distribution)
	prefix := distributionsKey + "."
	for path, d := range res.Distributions {
		if name, ok := strings.CutPrefix(path, prefix); ok {
			dists[name] = d
		}
	}
	if len(dists) == 0 {
		for path, d := range res.Distributions {
			dists[path] = d
		}
	}

	stats, ok := res.Data["statistics"].(map[string]any)
	if !ok {
		stats = make(map[string]any, len(res.Data))
		for k, v := range res.Data {
			switch k {
			case "summary", distributionsKey, "degraded":
			default:
				stats[k] = v
			}
		}
	}

	return Consolidation{
		Distributions: dists,
		Statistics:    stats,
		Summary:       res.Summary,
	}
}

func synthesisData(req domain.AnalysisRequest, results []domain.AgentResult) prompt.SynthesisData {
	ruleSet, _ := prompt.LookupRuleSet(req.Context.RuleSet)
	sorted := append([]domain.AgentResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Agent < sorted[j].Agent })

	reports := make([]prompt.AgentReport, 0, len(sorted))
	for _, r := range sorted {
		payload, err := json.MarshalIndent(r.Data, "", "  ")
		if err != nil {
			payload = []byte("{}")
		}
		reports = append(reports, prompt.AgentReport{
			Name:       r.Agent,
			Confidence: r.Confidence,
			Degraded:   r.Degraded,
			Error:      r.Error,
			Insights:   r.Insights,
			Payload:    string(payload),
		})
	}

	return prompt.SynthesisData{
		Subject:       req.Context.SubjectName,
		Discriminator: req.Context.Discriminator,
		RuleSet:       ruleSet,
		PriorResult:   req.Context.PriorResult,
		CallerFocus:   req.Context.FocusAreas,
		Agents:        reports,
	}
}
