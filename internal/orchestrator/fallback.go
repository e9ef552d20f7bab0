package orchestrator

import (
	"sort"
	"strings"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/structured"
)

// Consolidation is the merged content of a ConsolidatedAnalysis.
type Consolidation struct {
	Distributions map[string]domain.Distribution `json:"distributions"`
	Statistics    map[string]any                 `json:"statistics"`
	Summary       string                         `json:"summary"`
}

// FallbackMerge consolidates results locally without another remote call.
//
// Only successful results contribute. For every top-level key the value of
// the highest-confidence agent wins; ties go to the agent whose name sorts
// first. Distributions are collected the same way and normalized. The
// summary is the first insight of each successful agent, in name order,
// joined by spaces; it falls back to structured.DefaultSummary so it is never
// empty. The merge is deterministic and order-independent.
func FallbackMerge(results []domain.AgentResult) Consolidation {
	ranked := successful(results)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Agent < ranked[j].Agent
	})

	stats := make(map[string]any)
	dists := make(map[string]domain.Distribution)
	for _, r := range ranked {
		data := domain.CloneData(r.Data)
		for path, d := range structured.FindDistributions(data) {
			if _, taken := dists[path]; !taken {
				dists[path] = d
			}
		}
		for k, v := range data {
			if k == "summary" {
				continue
			}
			if _, taken := stats[k]; !taken {
				stats[k] = v
			}
		}
	}
	structured.NormalizeAll(dists)

	return Consolidation{
		Distributions: dists,
		Statistics:    stats,
		Summary:       fallbackSummary(results),
	}
}

func fallbackSummary(results []domain.AgentResult) string {
	byName := successful(results)
	sort.SliceStable(byName, func(i, j int) bool { return byName[i].Agent < byName[j].Agent })

	parts := make([]string, 0, len(byName))
	for _, r := range byName {
		for _, in := range r.Insights {
			if in = strings.TrimSpace(in); in != "" {
				parts = append(parts, in)
				break
			}
		}
	}
	if len(parts) == 0 {
		return structured.DefaultSummary
	}
	return strings.Join(parts, " ")
}

func successful(results []domain.AgentResult) []domain.AgentResult {
	out := make([]domain.AgentResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}
