package agent

import (
	"encoding/json"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/structured"
)

// Specialist names.
const (
	Technical = "technical"
	Tactical  = "tactical"
	Rules     = "rules"
)

// Spec is everything that distinguishes one specialist from another.
type Spec struct {
	// Name identifies the specialist in results, logs and cost entries.
	Name string

	// TemplateID selects the prompt template.
	TemplateID string

	// FocusAreas are the concerns the specialist is asked to cover.
	FocusAreas []string

	// Defaults is the payload shape. Missing fields in a parsed response are
	// filled from it, and it is returned as-is when the agent fails.
	Defaults map[string]any
}

// DefaultData returns an independent copy of the default payload.
func (s Spec) DefaultData() map[string]any {
	return domain.CloneData(s.Defaults)
}

// FallbackDistributions returns the distributions embedded in the defaults,
// normalized, for use as extraction placeholders.
func (s Spec) FallbackDistributions() map[string]domain.Distribution {
	return structured.FindDistributions(s.Defaults)
}

// Shape renders the default payload as indented JSON for the prompt.
func (s Spec) Shape() string {
	b, err := json.MarshalIndent(s.Defaults, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func dist(pairs ...any) []any {
	out := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]any{"label": pairs[i], "value": pairs[i+1]})
	}
	return out
}

// TechnicalSpec covers guard, passing and submission signals.
func TechnicalSpec() Spec {
	return Spec{
		Name:       Technical,
		TemplateID: "technical",
		FocusAreas: []string{"guard retention and type", "guard passing", "submission attempts and threats", "positional control"},
		Defaults: map[string]any{
			"guard": map[string]any{
				"type":      "unknown",
				"retention": "unknown",
			},
			"passing": map[string]any{
				"style":    "unknown",
				"attempts": 0.0,
			},
			"submissions": map[string]any{
				"attempts": []any{},
				"threats":  0.0,
			},
			"position_distribution": dist("Guard", 34.0, "Top", 33.0, "Standing", 33.0),
		},
	}
}

// TacticalSpec covers game plan, timing and pressure signals.
func TacticalSpec() Spec {
	return Spec{
		Name:       Tactical,
		TemplateID: "tactical",
		FocusAreas: []string{"game plan", "timing and initiative", "pressure and pace", "energy management"},
		Defaults: map[string]any{
			"game_plan": map[string]any{
				"approach": "unknown",
				"pace":     "unknown",
			},
			"timing": map[string]any{
				"initiative": "unknown",
				"scrambles":  0.0,
			},
			"pressure": map[string]any{
				"level":  "unknown",
				"source": "unknown",
			},
			"strategy_distribution": dist("Offensive", 34.0, "Defensive", 33.0, "Neutral", 33.0),
		},
	}
}

// RulesSpec covers scoring, penalty and legality signals.
func RulesSpec() Spec {
	return Spec{
		Name:       Rules,
		TemplateID: "rules",
		FocusAreas: []string{"points and advantages", "penalties", "technique legality under the rule set"},
		Defaults: map[string]any{
			"scoring": map[string]any{
				"points":     0.0,
				"advantages": 0.0,
				"events":     []any{},
			},
			"penalties": map[string]any{
				"count":   0.0,
				"reasons": []any{},
			},
			"legality": map[string]any{
				"illegal_techniques": []any{},
				"notes":              "",
			},
			"scoring_distribution": dist("Subject", 50.0, "Opponent", 50.0),
		},
	}
}

// DefaultSpecs returns the three specialists in name order.
func DefaultSpecs() []Spec {
	return []Spec{RulesSpec(), TacticalSpec(), TechnicalSpec()}
}
