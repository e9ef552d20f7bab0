package domain

import "time"

// DefaultConfidence is assigned when an agent responded but its output did
// not state a usable confidence.
const DefaultConfidence = 0.7

// DistributionItem is one labeled bucket of a percentage distribution.
type DistributionItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Distribution is a labeled set of non-negative values meant to sum to 100.
type Distribution []DistributionItem

// Sum returns the total of all bucket values.
func (d Distribution) Sum() float64 {
	var s float64
	for _, it := range d {
		s += it.Value
	}
	return s
}

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	if d == nil {
		return nil
	}
	return append(Distribution(nil), d...)
}

// AgentResult is the output of one specialist agent for one request.
// Results are produced exactly once per agent and never mutated afterward.
type AgentResult struct {
	// Agent is the specialist name, unique within an orchestrator.
	Agent string `json:"agent"`

	// Confidence is in [0,1]. Zero means the agent failed outright.
	Confidence float64 `json:"confidence"`

	// Data is the domain-shaped payload; its shape is owned by the agent.
	Data map[string]any `json:"data"`

	// Insights are short natural-language observations.
	Insights []string `json:"insights"`

	// Model is the model that served the call, used for cost attribution.
	Model string `json:"model,omitempty"`

	Usage UsageRecord `json:"usage"`

	// Degraded marks a result whose payload came from the extraction fallback.
	Degraded bool `json:"degraded,omitempty"`

	// Error records why the agent failed; empty on success.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the result counts toward the success quorum.
func (r AgentResult) Succeeded() bool { return r.Confidence > 0 }

// OrchestrationState is the lifecycle position of one orchestration.
type OrchestrationState string

const (
	// StateCollecting means specialist agents are running.
	StateCollecting OrchestrationState = "collecting"

	// StateConsolidating means the synthesis call or fallback merge is running.
	StateConsolidating OrchestrationState = "consolidating"

	// StateDone means synthesis succeeded.
	StateDone OrchestrationState = "done"

	// StateDegraded means the local fallback merge produced the result.
	StateDegraded OrchestrationState = "degraded"

	// StateFailed means every specialist agent failed.
	StateFailed OrchestrationState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrchestrationState) IsTerminal() bool {
	return s == StateDone || s == StateDegraded || s == StateFailed
}

// AnalysisMetadata describes how a ConsolidatedAnalysis was produced.
type AnalysisMetadata struct {
	RequestID       string             `json:"request_id"`
	AgentsRun       []string           `json:"agents_run"`
	AgentsSucceeded int                `json:"agents_succeeded"`
	Elapsed         time.Duration      `json:"elapsed"`
	SynthesisModel  string             `json:"synthesis_model"`
	Degraded        bool               `json:"degraded"`
	SynthesisError  string             `json:"synthesis_error,omitempty"`
	State           OrchestrationState `json:"state"`
	Usage           UsageAggregate     `json:"usage"`
	EstimatedCost   MilliCents         `json:"estimated_cost_milli_cents"`
}

// ConsolidatedAnalysis is the terminal artifact returned to the caller.
type ConsolidatedAnalysis struct {
	// Distributions are named categorical distributions, each summing to 100
	// unless its input total was zero.
	Distributions map[string]Distribution `json:"distributions"`

	// Statistics is the merged structured payload.
	Statistics map[string]any `json:"statistics"`

	// Summary is the narrative summary.
	Summary string `json:"summary"`

	// AgentResults are kept for transparency, including degraded ones.
	AgentResults []AgentResult `json:"agent_results"`

	Metadata AnalysisMetadata `json:"metadata"`
}
