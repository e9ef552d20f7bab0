package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-fightlens/internal/domain"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/pkg/activity"
	"github.com/ahrav/go-fightlens/pkg/events"
)

// EventAnalysisCompleted is emitted once per consolidated workflow run.
const EventAnalysisCompleted = "workflow.analysis_completed"

const eventSource = "fightlens.workflow"

// Activities exposes the orchestrator's stages as Temporal activities.
type Activities struct {
	activity.BaseActivities
	orch *orchestrator.Orchestrator
}

// NewActivities creates the analysis activities.
func NewActivities(base activity.BaseActivities, orch *orchestrator.Orchestrator) *Activities {
	return &Activities{BaseActivities: base, orch: orch}
}

// ListAgents returns the configured agent names in name order.
func (a *Activities) ListAgents(context.Context) ([]string, error) {
	return a.orch.AgentNames(), nil
}

// RunAgent runs one specialist. Agent failures are reported in the result,
// so the only error is an unknown agent name.
func (a *Activities) RunAgent(ctx context.Context, input RunAgentInput) (*domain.AgentResult, error) {
	agent, ok := a.orch.Agent(input.Agent)
	if !ok {
		return nil, nonRetryable(ErrTypeUnknownAgent, fmt.Errorf("agent %q is not registered", input.Agent), "unknown agent")
	}

	wf := a.GetWorkflowContext(ctx)
	a.RecordHeartbeat(ctx, input.Agent)
	res := a.orch.RunAgent(ctx, agent, input.Request)

	fields := []any{"agent", res.Agent, "attempt", wf.Attempt, "confidence", res.Confidence}
	if classified := llmerrors.ClassifyLLMError(errorOf(res)); classified != nil {
		fields = append(fields, "error_type", string(classified.Type), "retryable", classified.Retryable)
	}
	activity.SafeLog(ctx, "agent activity finished", fields...)
	return &res, nil
}

// Consolidate applies the quorum rule and synthesizes or falls back.
// AllAgentsFailed is non-retryable.
func (a *Activities) Consolidate(ctx context.Context, input ConsolidateInput) (*domain.ConsolidatedAnalysis, error) {
	a.RecordHeartbeat(ctx, "consolidating")

	out, err := a.orch.Consolidate(ctx, input.Request, input.Results, input.StartedAt)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAllAgentsFailed) {
			return nil, nonRetryable(ErrTypeAllAgentsFailed, err, "all agents failed")
		}
		classified := llmerrors.ClassifyLLMError(err)
		if !classified.Retryable {
			return nil, temporal.NewNonRetryableApplicationError("consolidation failed", ErrTypeConsolidation, err, classified.Details)
		}
		return nil, temporal.NewApplicationErrorWithCause("consolidation failed", ErrTypeConsolidation, err, classified.Details)
	}

	env, err := events.NewEnvelope(EventAnalysisCompleted, eventSource, input.Request.ID, analysisCompleted{
		State:           out.Metadata.State,
		AgentsSucceeded: out.Metadata.AgentsSucceeded,
		Degraded:        out.Metadata.Degraded,
		EstimatedCost:   out.Metadata.EstimatedCost,
	})
	if err == nil {
		a.EmitEventSafe(ctx, env, "analysis completed")
	}
	return out, nil
}

type analysisCompleted struct {
	State           domain.OrchestrationState `json:"state"`
	AgentsSucceeded int                       `json:"agents_succeeded"`
	Degraded        bool                      `json:"degraded"`
	EstimatedCost   domain.MilliCents         `json:"estimated_cost_milli_cents"`
}

func errorOf(r domain.AgentResult) error {
	if r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}
