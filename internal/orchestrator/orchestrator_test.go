package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/agent"
	"github.com/ahrav/go-fightlens/internal/costlog"
	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/business"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/retry"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/logging"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/internal/prompt"
	"github.com/ahrav/go-fightlens/pkg/events"
)

var (
	analysisRoute  = configuration.ModelRoute{Provider: "openai", Model: "gpt-4o", Timeout: time.Second}
	synthesisRoute = configuration.ModelRoute{Provider: "openai", Model: "gpt-4o-mini", Timeout: time.Second}

	authFailure = &llmerrors.ProviderError{Provider: "openai", StatusCode: 401, Type: llmerrors.ErrorTypeAuth}
)

const synthesisReply = `{
  "summary": "Athlete A controlled the match from closed guard.",
  "distributions": {"position_distribution": [{"label": "Guard", "value": 3}, {"label": "Top", "value": 1}]},
  "statistics": {"guard": {"type": "closed"}}
}`

type behavior func(ctx context.Context, req *transport.Request) (*transport.Response, error)

// router dispatches calls by label and counts them.
type router struct {
	mu        sync.Mutex
	behaviors map[string]behavior
	calls     map[string]int
}

func newRouter(behaviors map[string]behavior) *router {
	return &router{behaviors: behaviors, calls: make(map[string]int)}
}

func (r *router) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	r.mu.Lock()
	r.calls[req.Label]++
	b, ok := r.behaviors[req.Label]
	r.mu.Unlock()
	if !ok {
		b = agentReply(req.Label)
	}
	return b(ctx, req)
}

func (r *router) count(label string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[label]
}

func (r *router) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func respond(content string) behavior {
	return func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{
			Content: content,
			Model:   req.Model,
			Usage:   transport.NormalizedUsage{PromptTokens: 1000, CompletionTokens: 500},
		}, nil
	}
}

func agentReply(name string) behavior {
	return respond(fmt.Sprintf(`{"summary": "%s summary", "confidence": 0.8, "insights": ["%s insight", "%s second"]}`, name, name, name))
}

func failWith(err error) behavior {
	return func(context.Context, *transport.Request) (*transport.Response, error) { return nil, err }
}

// memoryCosts records cost entries.
type memoryCosts struct {
	mu      sync.Mutex
	entries []costlog.Entry
}

func (m *memoryCosts) Log(_ context.Context, e costlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type fixture struct {
	orch   *orchestrator.Orchestrator
	router *router
	costs  *memoryCosts
	sink   *events.MemorySink
}

func newFixture(t *testing.T, behaviors map[string]behavior, synthRoute configuration.ModelRoute) fixture {
	t.Helper()
	r := newRouter(behaviors)
	prompts := prompt.NewCache(nil)
	logger := logging.NewNop()

	policy := retry.DefaultPolicy()
	policy.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	var agents []orchestrator.Analyzer
	for _, spec := range agent.DefaultSpecs() {
		agents = append(agents, agent.New(spec, r, prompts, analysisRoute,
			agent.WithRetryPolicy(policy), agent.WithLogger(logger)))
	}

	prices, err := business.NewPriceTable(
		business.Price{Model: "gpt-4o", InputPerMillion: 1_000_000, OutputPerMillion: 2_000_000},
		business.Price{Model: "gpt-4o-mini", InputPerMillion: 100_000},
	)
	require.NoError(t, err)

	costs := &memoryCosts{}
	sink := events.NewMemorySink()
	orch, err := orchestrator.New(agents,
		orchestrator.NewSynthesizer(r, prompts, synthRoute, nil, logger),
		orchestrator.WithPriceTable(prices),
		orchestrator.WithCostLogger(costs),
		orchestrator.WithEventSink(sink),
		orchestrator.WithLogger(logger),
	)
	require.NoError(t, err)
	return fixture{orch: orch, router: r, costs: costs, sink: sink}
}

func request() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		ID:      "req-1",
		Frame:   domain.Frame{Data: []byte{0xff, 0xd8, 0xff}},
		Context: domain.AnalysisContext{SubjectName: "Athlete A", RuleSet: "ibjjf"},
	}
}

// TestOrchestrate_AllSucceed covers three successful agents and a successful
// synthesis.
func TestOrchestrate_AllSucceed(t *testing.T) {
	f := newFixture(t, map[string]behavior{"synthesis": respond(synthesisReply)}, synthesisRoute)

	out, err := f.orch.Orchestrate(context.Background(), request())
	require.NoError(t, err)

	m := out.Metadata
	assert.Equal(t, 3, m.AgentsSucceeded)
	assert.False(t, m.Degraded)
	assert.Equal(t, domain.StateDone, m.State)
	assert.Equal(t, []string{agent.Rules, agent.Tactical, agent.Technical}, m.AgentsRun)
	assert.Equal(t, "gpt-4o-mini", m.SynthesisModel)
	assert.Empty(t, m.SynthesisError)

	assert.Equal(t, "Athlete A controlled the match from closed guard.", out.Summary)
	assert.Equal(t, domain.Distribution{{Label: "Guard", Value: 75}, {Label: "Top", Value: 25}},
		out.Distributions["position_distribution"])
	assert.Equal(t, map[string]any{"type": "closed"}, out.Statistics["guard"])
	require.Len(t, out.AgentResults, 3)

	// 3 x (1000*1.0 + 500*2.0) + 1000*0.1 milli-cents.
	assert.Equal(t, 3, m.Usage.Specialists.Calls)
	assert.Equal(t, 1, m.Usage.Synthesis.Calls)
	assert.Equal(t, domain.MilliCents(6000), m.Usage.Specialists.Cost)
	assert.Equal(t, domain.MilliCents(100), m.Usage.Synthesis.Cost)
	assert.Equal(t, domain.MilliCents(6100), m.EstimatedCost)
	assert.Equal(t, int64(6000), m.Usage.Total().TotalTokens)

	assert.Len(t, f.costs.entries, 4)
	assert.ElementsMatch(t, []string{
		orchestrator.EventAgentCompleted,
		orchestrator.EventAgentCompleted,
		orchestrator.EventAgentCompleted,
		orchestrator.EventOrchestrationCompleted,
	}, f.sink.Types())
	for _, e := range f.sink.Events() {
		assert.Equal(t, "req-1", e.RequestID)
	}
}

// TestOrchestrate_PartialFailure verifies k-of-n agent failures for k < n
// still produce a result.
func TestOrchestrate_PartialFailure(t *testing.T) {
	tests := []struct {
		name    string
		failing []string
		want    int
	}{
		{name: "one fails", failing: []string{agent.Technical}, want: 2},
		{name: "two fail", failing: []string{agent.Technical, agent.Rules}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			behaviors := map[string]behavior{"synthesis": respond(synthesisReply)}
			for _, name := range tt.failing {
				behaviors[name] = failWith(authFailure)
			}
			f := newFixture(t, behaviors, synthesisRoute)

			out, err := f.orch.Orchestrate(context.Background(), request())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Metadata.AgentsSucceeded)
			assert.False(t, out.Metadata.Degraded)
			assert.Len(t, out.AgentResults, 3, "failed agents are kept for transparency")
			assert.Equal(t, tt.want, out.Metadata.Usage.Specialists.Calls)

			for _, r := range out.AgentResults {
				if contains(tt.failing, r.Agent) {
					assert.Zero(t, r.Confidence)
					assert.NotEmpty(t, r.Error)
				}
			}
		})
	}
}

// TestOrchestrate_AllAgentsFail verifies the only fatal path.
func TestOrchestrate_AllAgentsFail(t *testing.T) {
	f := newFixture(t, map[string]behavior{
		agent.Technical: failWith(authFailure),
		agent.Tactical:  failWith(authFailure),
		agent.Rules:     failWith(authFailure),
	}, synthesisRoute)

	out, err := f.orch.Orchestrate(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, orchestrator.ErrAllAgentsFailed)

	var failed *orchestrator.AllAgentsFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "req-1", failed.RequestID)
	assert.Len(t, failed.Results, 3)

	assert.Zero(t, f.router.count("synthesis"))
	assert.Contains(t, f.sink.Types(), orchestrator.EventOrchestrationFailed)
	assert.Empty(t, f.costs.entries)
}

// TestOrchestrate_UnparseableRepliesCountTowardQuorum verifies replies that
// cannot be parsed are degraded results, not failures, and synthesis runs.
func TestOrchestrate_UnparseableRepliesCountTowardQuorum(t *testing.T) {
	f := newFixture(t, map[string]behavior{
		agent.Technical: respond("I see two athletes."),
		agent.Tactical:  respond("The match looks even."),
		agent.Rules:     respond("No scoring visible."),
		"synthesis":     respond(synthesisReply),
	}, synthesisRoute)

	out, err := f.orch.Orchestrate(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 3, out.Metadata.AgentsSucceeded)
	assert.Equal(t, domain.StateDone, out.Metadata.State)
	assert.False(t, out.Metadata.Degraded)
	for _, r := range out.AgentResults {
		assert.True(t, r.Degraded, r.Agent)
		assert.InDelta(t, domain.DefaultConfidence, r.Confidence, 1e-9, r.Agent)
	}
	assert.Equal(t, 1, f.router.count("synthesis"))
	assert.Len(t, f.costs.entries, 4, "every reply cost tokens")
}

// TestOrchestrate_SynthesisFailure verifies recovery through the fallback
// merge with no further remote calls.
func TestOrchestrate_SynthesisFailure(t *testing.T) {
	tests := []struct {
		name      string
		synthesis behavior
		route     configuration.ModelRoute
		wantErr   string
		wantCalls int
	}{
		{
			name:      "remote error",
			synthesis: failWith(&llmerrors.ProviderError{Provider: "openai", StatusCode: 503, Type: llmerrors.ErrorTypeProvider}),
			route:     synthesisRoute,
			wantErr:   "synthesis call",
		},
		{
			name: "timeout",
			synthesis: func(ctx context.Context, _ *transport.Request) (*transport.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			route:   configuration.ModelRoute{Provider: "openai", Model: "gpt-4o-mini", Timeout: 20 * time.Millisecond},
			wantErr: "deadline exceeded",
		},
		{
			name:      "unparseable",
			synthesis: respond("I cannot help with that."),
			route:     synthesisRoute,
			wantErr:   orchestrator.ErrSynthesisUnparseable.Error(),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]behavior{"synthesis": tt.synthesis}, tt.route)

			out, err := f.orch.Orchestrate(context.Background(), request())
			require.NoError(t, err)

			m := out.Metadata
			assert.True(t, m.Degraded)
			assert.Equal(t, domain.StateDegraded, m.State)
			assert.Equal(t, 3, m.AgentsSucceeded)
			assert.Contains(t, m.SynthesisError, tt.wantErr)
			assert.Equal(t, tt.wantCalls, m.Usage.Synthesis.Calls)

			assert.Equal(t, "rules insight tactical insight technical insight", out.Summary)
			assert.Contains(t, out.Distributions, "position_distribution")
			assert.Contains(t, out.Statistics, "guard")

			assert.Equal(t, 1, f.router.count("synthesis"), "synthesis is attempted once")
			assert.Equal(t, 4, f.router.total(), "no remote calls after the failed synthesis")
			assert.Contains(t, f.sink.Types(), orchestrator.EventSynthesisDegraded)
		})
	}
}

// TestOrchestrate_InvalidRequest verifies validation happens before any call.
func TestOrchestrate_InvalidRequest(t *testing.T) {
	f := newFixture(t, nil, synthesisRoute)

	req := request()
	req.Frame.Handle = "file-123"

	_, err := f.orch.Orchestrate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.ErrorIs(t, err, domain.ErrInvalidFrame)
	assert.Zero(t, f.router.total())
}

type panicking struct{ name string }

func (p panicking) Name() string { return p.name }

func (p panicking) Analyze(context.Context, domain.Frame, domain.AnalysisContext) domain.AgentResult {
	panic("boom")
}

type static struct {
	name   string
	result domain.AgentResult
}

func (s static) Name() string { return s.name }

func (s static) Analyze(context.Context, domain.Frame, domain.AnalysisContext) domain.AgentResult {
	return s.result
}

// TestOrchestrate_PanicIsolated verifies a panicking agent degrades alone.
func TestOrchestrate_PanicIsolated(t *testing.T) {
	ok := static{name: "ok", result: domain.AgentResult{
		Agent: "ok", Confidence: 0.9, Data: map[string]any{"guard": "closed"}, Insights: []string{"Solid guard."},
	}}
	orch, err := orchestrator.New([]orchestrator.Analyzer{panicking{name: "bad"}, ok}, nil,
		orchestrator.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	out, err := orch.Orchestrate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Metadata.AgentsSucceeded)
	assert.True(t, out.Metadata.Degraded, "no synthesizer configured")
	assert.Equal(t, orchestrator.ErrSynthesisDisabled.Error(), out.Metadata.SynthesisError)
	assert.Equal(t, "Solid guard.", out.Summary)
	require.Len(t, out.AgentResults, 2)
	assert.Equal(t, "bad", out.AgentResults[0].Agent)
	assert.Contains(t, out.AgentResults[0].Error, "panicked")
}

// TestNew verifies agent set validation.
func TestNew(t *testing.T) {
	_, err := orchestrator.New(nil, nil)
	assert.ErrorIs(t, err, orchestrator.ErrNoAgents)

	_, err = orchestrator.New([]orchestrator.Analyzer{static{name: "a"}, static{name: "a"}}, nil)
	assert.ErrorIs(t, err, orchestrator.ErrDuplicateAgent)

	orch, err := orchestrator.New([]orchestrator.Analyzer{static{name: "b"}, static{name: "a"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, orch.AgentNames())
	_, found := orch.Agent("b")
	assert.True(t, found)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

