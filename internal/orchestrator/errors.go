package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// ErrAllAgentsFailed is the sentinel matched by AllAgentsFailedError.
var ErrAllAgentsFailed = errors.New("all specialist agents failed")

// ErrNoAgents is returned by New when no agent is configured.
var ErrNoAgents = errors.New("at least one agent is required")

// ErrDuplicateAgent is returned by New when two agents share a name.
var ErrDuplicateAgent = errors.New("duplicate agent name")

// ErrSynthesisDisabled is recorded as the synthesis error when no
// Synthesizer is configured.
var ErrSynthesisDisabled = errors.New("synthesis is not configured")

// AllAgentsFailedError is the only failure Orchestrate surfaces once a
// request has been accepted. It carries every degraded result so callers can
// see why each agent failed.
type AllAgentsFailedError struct {
	RequestID string
	Results   []domain.AgentResult
}

// Error implements error.
func (e *AllAgentsFailedError) Error() string {
	reasons := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		reasons = append(reasons, fmt.Sprintf("%s: %s", r.Agent, r.Error))
	}
	return fmt.Sprintf("request %s: %d %s (%s)",
		e.RequestID, len(e.Results), ErrAllAgentsFailed.Error(), strings.Join(reasons, "; "))
}

// Is reports whether target is ErrAllAgentsFailed.
func (e *AllAgentsFailedError) Is(target error) bool { return target == ErrAllAgentsFailed }
