package agent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/agent"
	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/retry"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
	"github.com/ahrav/go-fightlens/internal/logging"
	"github.com/ahrav/go-fightlens/internal/prompt"
)

var (
	inlineFrame = domain.Frame{Data: []byte{0xff, 0xd8, 0xff}}
	handleFrame = domain.Frame{Handle: "https://cdn.example.com/frame.jpg"}
	actx        = domain.AnalysisContext{SubjectName: "Athlete A", Discriminator: "blue gi", RuleSet: "ibjjf"}
	route       = configuration.ModelRoute{Provider: "openai", Model: "gpt-4o", MaxTokens: 500, Timeout: time.Second}
)

// scripted returns canned responses in order and records requests.
type scripted struct {
	mu       sync.Mutex
	calls    atomic.Int32
	requests []transport.Request
	steps    []func() (*transport.Response, error)
}

func (s *scripted) Handle(_ context.Context, req *transport.Request) (*transport.Response, error) {
	n := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	s.requests = append(s.requests, *req)
	s.mu.Unlock()
	step := s.steps[len(s.steps)-1]
	if n < len(s.steps) {
		step = s.steps[n]
	}
	return step()
}

func reply(content string) func() (*transport.Response, error) {
	return func() (*transport.Response, error) {
		return &transport.Response{
			Content: content,
			Model:   "gpt-4o-2024-08-06",
			Usage:   transport.NormalizedUsage{PromptTokens: 900, CompletionTokens: 300, TotalTokens: 1200},
		}, nil
	}
}

func fail(err error) func() (*transport.Response, error) {
	return func() (*transport.Response, error) { return nil, err }
}

var transient = &llmerrors.ProviderError{Provider: "openai", StatusCode: 503, Type: llmerrors.ErrorTypeProvider}

func newAgent(spec agent.Spec, h transport.Handler) *agent.Agent {
	p := retry.DefaultPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return agent.New(spec, h, prompt.NewCache(nil), route,
		agent.WithRetryPolicy(p),
		agent.WithLogger(logging.NewNop()),
	)
}

const technicalReply = "```json\n" + `{
  "summary": "Athlete A holds closed guard.",
  "confidence": 85,
  "insights": ["Closed guard with high collar grip", ""],
  "guard": {"type": "closed"},
  "passing": {"style": "pressure", "attempts": 2},
  "position_distribution": [{"label": "Guard", "value": 2}, {"label": "Top", "value": 1}, {"label": "Standing", "value": 1}]
}` + "\n```"

// TestAnalyze_Success verifies parsing, percentage confidence, normalized
// distributions and default filling.
func TestAnalyze_Success(t *testing.T) {
	h := &scripted{steps: []func() (*transport.Response, error){reply(technicalReply)}}
	a := newAgent(agent.TechnicalSpec(), h)

	ctx := transport.WithRequestID(context.Background(), "req-42")
	res := a.Analyze(ctx, inlineFrame, actx)

	require.Empty(t, res.Error)
	assert.Equal(t, agent.Technical, res.Agent)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.True(t, res.Succeeded())
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"Closed guard with high collar grip"}, res.Insights)
	assert.Equal(t, "gpt-4o-2024-08-06", res.Model)
	assert.Equal(t, int64(1200), res.Usage.TotalTokens)

	guard := res.Data["guard"].(map[string]any)
	assert.Equal(t, "closed", guard["type"])
	assert.Equal(t, "unknown", guard["retention"], "nested default filled")
	assert.Contains(t, res.Data, "submissions", "missing concern filled")
	assert.NotContains(t, res.Data, "confidence")

	items := res.Data["position_distribution"].([]any)
	assert.Equal(t, 50.0, items[0].(map[string]any)["value"])

	require.Len(t, h.requests, 1)
	req := h.requests[0]
	assert.Equal(t, transport.OpAnalysis, req.Operation)
	assert.Equal(t, "req-42", req.RequestID)
	assert.Equal(t, agent.Technical, req.Label)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Contains(t, req.Prompt, "Athlete A (blue gi)")
	assert.Contains(t, req.Prompt, "position_distribution")
	require.NotNil(t, req.Frame)
	assert.Equal(t, inlineFrame.Data, req.Frame.Data)
}

// TestAnalyze_Confidence covers missing, fractional and out-of-range values.
func TestAnalyze_Confidence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{name: "missing", body: `{"summary": "s"}`, want: domain.DefaultConfidence},
		{name: "fraction", body: `{"confidence": 0.42}`, want: 0.42},
		{name: "percent string", body: `{"confidence": "60%"}`, want: 0.6},
		{name: "above range", body: `{"confidence": 250}`, want: 1},
		{name: "zero stays a success", body: `{"confidence": 0}`, want: agent.MinConfidence},
		{name: "garbage", body: `{"confidence": "high"}`, want: domain.DefaultConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &scripted{steps: []func() (*transport.Response, error){reply(tt.body)}}
			res := newAgent(agent.TacticalSpec(), h).Analyze(context.Background(), handleFrame, actx)
			assert.InDelta(t, tt.want, res.Confidence, 1e-9)
			assert.True(t, res.Succeeded())
		})
	}
}

// TestAnalyze_InvalidFrame verifies a frame with neither or both inputs
// fails without a remote call.
func TestAnalyze_InvalidFrame(t *testing.T) {
	frames := map[string]domain.Frame{
		"neither": {},
		"both":    {Data: []byte{1}, Handle: "file-1"},
	}
	for name, f := range frames {
		t.Run(name, func(t *testing.T) {
			h := &scripted{steps: []func() (*transport.Response, error){reply(`{}`)}}
			res := newAgent(agent.RulesSpec(), h).Analyze(context.Background(), f, actx)

			assert.Zero(t, res.Confidence)
			assert.NotEmpty(t, res.Error)
			assert.Zero(t, h.calls.Load())
			assert.Contains(t, res.Data, "scoring_distribution", "default shape returned")
		})
	}
}

// TestAnalyze_Retries verifies transient failures are retried and terminal
// ones are not.
func TestAnalyze_Retries(t *testing.T) {
	tests := []struct {
		name      string
		steps     []func() (*transport.Response, error)
		wantCalls int32
		wantOK    bool
	}{
		{
			name:      "recovers on third attempt",
			steps:     []func() (*transport.Response, error){fail(transient), fail(transient), reply(`{"confidence": 0.9}`)},
			wantCalls: 3,
			wantOK:    true,
		},
		{
			name:      "exhausted",
			steps:     []func() (*transport.Response, error){fail(transient)},
			wantCalls: 3,
		},
		{
			name:      "auth is terminal",
			steps:     []func() (*transport.Response, error){fail(&llmerrors.ProviderError{StatusCode: 401, Type: llmerrors.ErrorTypeAuth})},
			wantCalls: 1,
		},
		{
			name:      "unknown errors are retried",
			steps:     []func() (*transport.Response, error){fail(errors.New("connection reset")), reply(`{}`)},
			wantCalls: 2,
			wantOK:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &scripted{steps: tt.steps}
			res := newAgent(agent.TechnicalSpec(), h).Analyze(context.Background(), inlineFrame, actx)
			assert.Equal(t, tt.wantCalls, h.calls.Load())
			assert.Equal(t, tt.wantOK, res.Succeeded())
			if !tt.wantOK {
				assert.NotEmpty(t, res.Error)
				assert.Zero(t, res.Usage.TotalTokens)
			}
		})
	}
}

// TestAnalyze_Unparseable verifies a reply with no recoverable object is a
// degraded result at the default confidence that still counts as a success
// and keeps usage for cost accounting.
func TestAnalyze_Unparseable(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		wantInsights []string
	}{
		{name: "prose only", reply: "I cannot analyze this image.", wantInsights: []string{}},
		{
			name:         "summary recovered",
			reply:        `{"summary": "Guard retention was strong", "x": @@}`,
			wantInsights: []string{"Guard retention was strong"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &scripted{steps: []func() (*transport.Response, error){reply(tt.reply)}}
			res := newAgent(agent.TechnicalSpec(), h).Analyze(context.Background(), inlineFrame, actx)

			assert.InDelta(t, domain.DefaultConfidence, res.Confidence, 1e-9)
			assert.True(t, res.Succeeded())
			assert.True(t, res.Degraded)
			assert.Contains(t, res.Error, agent.ErrUnparseable.Error())
			assert.Equal(t, tt.wantInsights, res.Insights)
			assert.Equal(t, int64(1200), res.Usage.TotalTokens)
			assert.Equal(t, "gpt-4o-2024-08-06", res.Model)
			assert.Equal(t, int32(1), h.calls.Load(), "parse failures are not retried")

			for k := range agent.TechnicalSpec().Defaults {
				assert.Contains(t, res.Data, k)
			}
			assert.NotContains(t, res.Data, "degraded")
		})
	}
}

// TestAnalyze_Panic verifies a panicking handler cannot escape Analyze.
func TestAnalyze_Panic(t *testing.T) {
	h := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		panic("boom")
	})
	res := newAgent(agent.TacticalSpec(), h).Analyze(context.Background(), inlineFrame, actx)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Error, "panicked")
	assert.Contains(t, res.Data, "strategy_distribution")
}

// TestAnalyze_ContextCanceled verifies cancellation yields a failed result.
func TestAnalyze_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &scripted{steps: []func() (*transport.Response, error){func() (*transport.Response, error) {
		return nil, context.Canceled
	}}}
	res := newAgent(agent.RulesSpec(), h).Analyze(ctx, inlineFrame, actx)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Error, context.Canceled.Error())
	assert.Zero(t, h.calls.Load(), "no call is made on a canceled context")
}

// TestSpecs verifies every spec's defaults carry one normalized distribution
// and a template that exists.
func TestSpecs(t *testing.T) {
	cache := prompt.NewCache(nil)
	for _, s := range agent.DefaultSpecs() {
		t.Run(s.Name, func(t *testing.T) {
			_, err := cache.Get(s.TemplateID)
			require.NoError(t, err)
			d := s.FallbackDistributions()
			require.Len(t, d, 1)
			for _, dist := range d {
				assert.Equal(t, 100.0, dist.Sum())
			}
			assert.NotEmpty(t, s.FocusAreas)
			assert.Contains(t, s.Shape(), "distribution")
		})
	}
}
