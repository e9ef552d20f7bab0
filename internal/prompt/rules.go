package prompt

import (
	"sort"
	"strings"
)

// RuleSet describes a competition rule set in the terms the prompts use.
type RuleSet struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scoring     []string `json:"scoring"`
	Penalties   []string `json:"penalties"`
}

// Text renders the rule set as prompt text.
func (r RuleSet) Text() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Description != "" {
		b.WriteString(": ")
		b.WriteString(r.Description)
	}
	if len(r.Scoring) > 0 {
		b.WriteString("\nScoring: ")
		b.WriteString(strings.Join(r.Scoring, "; "))
	}
	if len(r.Penalties) > 0 {
		b.WriteString("\nPenalties: ")
		b.WriteString(strings.Join(r.Penalties, "; "))
	}
	return b.String()
}

var ruleSets = map[string]RuleSet{
	"ibjjf": {
		ID:          "ibjjf",
		Name:        "IBJJF",
		Description: "points, advantages and penalties decide matches without a submission",
		Scoring: []string{
			"takedown 2", "sweep 2", "knee on belly 2",
			"guard pass 3", "mount 4", "back control 4",
			"advantages for near-scores",
		},
		Penalties: []string{
			"stalling", "guard pull without grips",
			"illegal techniques by belt (heel hooks, slams)",
		},
	},
	"adcc": {
		ID:          "adcc",
		Name:        "ADCC",
		Description: "submission grappling with positional points and negative points for passivity",
		Scoring: []string{
			"takedown 2", "sweep 2", "knee on belly 2",
			"guard pass 3", "mount 2", "back control 3",
		},
		Penalties: []string{
			"negative point for pulling guard", "negative point for stalling",
			"slams", "heel hooks are legal",
		},
	},
	"submission_only": {
		ID:          "submission_only",
		Name:        "Submission only",
		Description: "no points; only a submission ends the match",
		Penalties:   []string{"stalling warnings", "slams"},
	},
}

// DefaultRuleSet describes analysis without a declared rule set.
var DefaultRuleSet = RuleSet{
	ID:          "",
	Name:        "Unspecified rules",
	Description: "judge general grappling effectiveness: control, advancement and submission threat",
}

// LookupRuleSet returns the rule set for id, case-insensitively.
// Unknown ids yield a rule set that carries the id as its name.
func LookupRuleSet(id string) (RuleSet, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return DefaultRuleSet, true
	}
	if r, ok := ruleSets[strings.ReplaceAll(key, "-", "_")]; ok {
		return r, true
	}
	return RuleSet{ID: key, Name: id}, false
}

// RuleSets lists the catalog in id order.
func RuleSets() []RuleSet {
	out := make([]RuleSet, 0, len(ruleSets))
	for _, r := range ruleSets {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
