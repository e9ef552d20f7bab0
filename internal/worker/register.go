package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-fightlens/internal/config"
	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/internal/workflow"
	"github.com/ahrav/go-fightlens/pkg/activity"
	"github.com/ahrav/go-fightlens/pkg/events"
)

// RegisterAll registers the analysis workflow and its activities with w.
// It must be called once, before the worker starts.
func RegisterAll(w sdkworker.Worker, orch *orchestrator.Orchestrator, sink events.EventSink) {
	acts := workflow.NewActivities(activity.NewBaseActivities(sink), orch)

	w.RegisterWorkflow(workflow.AnalysisWorkflow)

	w.RegisterActivity(acts.ListAgents)
	w.RegisterActivity(acts.RunAgent)
	w.RegisterActivity(acts.Consolidate)
}

// Dial connects to the Temporal frontend, logging through logger.
func Dial(cfg config.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// New creates a worker on taskQueue with the analysis stack registered.
func New(c client.Client, taskQueue string, comps *Components) sdkworker.Worker {
	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	RegisterAll(w, comps.Orchestrator, comps.Events)
	return w
}

// RunAnalysis starts an AnalysisWorkflow for req and waits for its result.
// The workflow id is derived from the request id so resubmitting the same
// request attaches to the running execution.
func RunAnalysis(ctx context.Context, c client.Client, taskQueue string, req domain.AnalysisRequest, agents []string) (*domain.ConsolidatedAnalysis, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "analysis-" + req.ID,
		TaskQueue: taskQueue,
	}, workflow.AnalysisWorkflow, workflow.AnalysisInput{Request: req, Agents: agents})
	if err != nil {
		return nil, fmt.Errorf("failed to start analysis workflow: %w", err)
	}

	var out domain.ConsolidatedAnalysis
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("analysis workflow %s: %w", run.GetID(), err)
	}
	return &out, nil
}
