package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/logging"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/pkg/activity"
	"github.com/ahrav/go-fightlens/pkg/events"
)

type fakeAgent struct {
	name   string
	result domain.AgentResult
}

func (f fakeAgent) Name() string { return f.name }

func (f fakeAgent) Analyze(context.Context, domain.Frame, domain.AnalysisContext) domain.AgentResult {
	return f.result
}

func succeeding(name, insight string, confidence float64) fakeAgent {
	return fakeAgent{name: name, result: domain.AgentResult{
		Agent:      name,
		Confidence: confidence,
		Data:       map[string]any{name: "observed"},
		Insights:   []string{insight},
	}}
}

func failing(name string) fakeAgent {
	return fakeAgent{name: name, result: domain.AgentResult{
		Agent: name, Data: map[string]any{}, Insights: []string{}, Error: "provider unavailable",
	}}
}

func newEnv(t *testing.T, agents ...orchestrator.Analyzer) (*testsuite.TestWorkflowEnvironment, *events.MemorySink) {
	t.Helper()
	orch, err := orchestrator.New(agents, nil, orchestrator.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	sink := events.NewMemorySink()
	acts := NewActivities(activity.NewBaseActivities(sink), orch)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(AnalysisWorkflow)
	env.RegisterActivity(acts.ListAgents)
	env.RegisterActivity(acts.RunAgent)
	env.RegisterActivity(acts.Consolidate)
	return env, sink
}

func validRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		ID:      "req-wf",
		Frame:   domain.Frame{Handle: "file-abc"},
		Context: domain.AnalysisContext{SubjectName: "Athlete A"},
	}
}

func TestAnalysisWorkflow(t *testing.T) {
	t.Run("partial failure consolidates survivors", func(t *testing.T) {
		env, sink := newEnv(t,
			succeeding("technical", "Closed guard.", 0.9),
			succeeding("tactical", "Forward pressure.", 0.7),
			failing("rules"),
		)

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: validRequest()})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var out domain.ConsolidatedAnalysis
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, 2, out.Metadata.AgentsSucceeded)
		assert.Equal(t, []string{"rules", "tactical", "technical"}, out.Metadata.AgentsRun)
		assert.True(t, out.Metadata.Degraded, "no synthesizer configured")
		assert.Equal(t, "Forward pressure. Closed guard.", out.Summary)

		got := sink.Events()
		require.Len(t, got, 1)
		assert.Equal(t, EventAnalysisCompleted, got[0].Type)
		assert.NotEmpty(t, got[0].WorkflowID)
	})

	t.Run("explicit agent subset", func(t *testing.T) {
		env, _ := newEnv(t, succeeding("technical", "Closed guard.", 0.9), failing("rules"))

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: validRequest(), Agents: []string{"technical"}})
		require.NoError(t, env.GetWorkflowError())

		var out domain.ConsolidatedAnalysis
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, []string{"technical"}, out.Metadata.AgentsRun)
		assert.Equal(t, 1, out.Metadata.AgentsSucceeded)
	})

	t.Run("unknown agent degrades without failing siblings", func(t *testing.T) {
		env, _ := newEnv(t, succeeding("technical", "Closed guard.", 0.9))

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: validRequest(), Agents: []string{"technical", "striking"}})
		require.NoError(t, env.GetWorkflowError())

		var out domain.ConsolidatedAnalysis
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, 1, out.Metadata.AgentsSucceeded)
		require.Len(t, out.AgentResults, 2)
		assert.Equal(t, "striking", out.AgentResults[0].Agent)
		assert.NotEmpty(t, out.AgentResults[0].Error)
	})

	t.Run("all agents failed is non-retryable", func(t *testing.T) {
		env, _ := newEnv(t, failing("technical"), failing("rules"))

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: validRequest()})
		require.True(t, env.IsWorkflowCompleted())

		err := env.GetWorkflowError()
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, ErrTypeAllAgentsFailed, appErr.Type())
		assert.True(t, appErr.NonRetryable())
	})

	t.Run("consolidation runs once even on retryable errors", func(t *testing.T) {
		env, _ := newEnv(t, succeeding("technical", "x", 0.5))
		env.OnActivity("Consolidate", mock.Anything, mock.Anything).
			Return((*domain.ConsolidatedAnalysis)(nil), temporal.NewApplicationError("store unavailable", ErrTypeConsolidation)).
			Once()

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: validRequest()})
		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
		env.AssertActivityNumberOfCalls(t, "Consolidate", ConsolidateAttempts)
	})

	t.Run("invalid request fails validation", func(t *testing.T) {
		env, _ := newEnv(t, succeeding("technical", "x", 0.5))

		env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Request: domain.AnalysisRequest{ID: "r"}})
		require.True(t, env.IsWorkflowCompleted())

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, env.GetWorkflowError(), &appErr)
		assert.Equal(t, ErrTypeValidation, appErr.Type())
		assert.Contains(t, appErr.Error(), "invalid analysis request")
	})
}
