package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// Application error types returned by the workflow and its activities.
const (
	ErrTypeValidation      = "Validation"
	ErrTypeUnknownAgent    = "UnknownAgent"
	ErrTypeAllAgentsFailed = "AllAgentsFailed"
	ErrTypeConsolidation   = "Consolidation"
)

// Activity timeouts. Agent activities cover the agent's own retries.
const (
	DefaultAgentTimeout       = 5 * time.Minute
	DefaultConsolidateTimeout = 2 * time.Minute
	listAgentsTimeout         = 10 * time.Second
)

// ConsolidateAttempts is the attempt limit of the Consolidate activity.
const ConsolidateAttempts = 1

// AnalysisInput starts an AnalysisWorkflow. An empty Agents list runs every
// agent registered with the worker.
type AnalysisInput struct {
	Request domain.AnalysisRequest `json:"request"`
	Agents  []string               `json:"agents,omitempty"`
}

// RunAgentInput is the input of the RunAgent activity.
type RunAgentInput struct {
	Agent   string                 `json:"agent"`
	Request domain.AnalysisRequest `json:"request"`
}

// ConsolidateInput is the input of the Consolidate activity.
type ConsolidateInput struct {
	Request   domain.AnalysisRequest `json:"request"`
	Results   []domain.AgentResult   `json:"results"`
	StartedAt time.Time              `json:"started_at"`
}

// AnalysisWorkflow fans the request out to one activity per agent, waits for
// all of them, and consolidates. An activity that fails outright becomes a
// failed result for its agent and never cancels its siblings.
func AnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (*domain.ConsolidatedAnalysis, error) {
	// Version gate enables safe evolution and backward compatibility.
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "analysis.v", workflow.DefaultVersion, currentVersion)

	if err := input.Request.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid analysis request", ErrTypeValidation, err)
	}

	logger := workflow.GetLogger(ctx)
	startedAt := workflow.Now(ctx)
	var a *Activities

	agents := input.Agents
	if len(agents) == 0 {
		lctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: listAgentsTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
		})
		if err := workflow.ExecuteActivity(lctx, a.ListAgents).Get(ctx, &agents); err != nil {
			return nil, err
		}
	}

	// Agents retry transient model errors themselves.
	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: DefaultAgentTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	futures := make([]workflow.Future, len(agents))
	for i, name := range agents {
		futures[i] = workflow.ExecuteActivity(actx, a.RunAgent, RunAgentInput{Agent: name, Request: input.Request})
	}

	results := make([]domain.AgentResult, 0, len(agents))
	for i, f := range futures {
		var res domain.AgentResult
		if err := f.Get(ctx, &res); err != nil {
			logger.Warn("agent activity failed", "agent", agents[i], "error", err)
			res = domain.AgentResult{
				Agent:    agents[i],
				Data:     map[string]any{},
				Insights: []string{},
				Error:    err.Error(),
			}
		}
		results = append(results, res)
	}

	cctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: DefaultConsolidateTimeout,
		// One attempt: a retry would repeat the synthesis call and log its
		// cost twice.
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        ConsolidateAttempts,
			NonRetryableErrorTypes: []string{ErrTypeAllAgentsFailed},
		},
	})

	var out domain.ConsolidatedAnalysis
	err := workflow.ExecuteActivity(cctx, a.Consolidate, ConsolidateInput{
		Request:   input.Request,
		Results:   results,
		StartedAt: startedAt,
	}).Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
