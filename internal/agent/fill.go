package agent

import (
	"math"
	"strconv"
	"strings"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// Payload keys the agent lifts out of the parsed response.
const (
	keyConfidence = "confidence"
	keyInsights   = "insights"
	keySummary    = "summary"
	keyDegraded   = "degraded"
)

// MinConfidence is the floor for a parsed response that states zero
// confidence, so it still counts as a success.
const MinConfidence = 0.01

// fillDefaults copies every field of defaults missing from data, recursing
// into objects. A value whose kind differs from the default (object vs
// array vs scalar) is replaced by the default.
func fillDefaults(data, defaults map[string]any) {
	for k, def := range defaults {
		cur, ok := data[k]
		if !ok || cur == nil {
			data[k] = cloneAny(def)
			continue
		}
		switch d := def.(type) {
		case map[string]any:
			m, isMap := cur.(map[string]any)
			if !isMap {
				data[k] = cloneAny(def)
				continue
			}
			fillDefaults(m, d)
		case []any:
			if _, isSlice := cur.([]any); !isSlice {
				data[k] = cloneAny(def)
			}
		default:
			switch cur.(type) {
			case map[string]any, []any:
				data[k] = cloneAny(def)
			}
		}
	}
}

func cloneAny(v any) any {
	return domain.CloneData(map[string]any{"v": v})["v"]
}

// parseConfidence reads a confidence value. Values in (1, 100] are read as
// percentages. Missing or unreadable values yield DefaultConfidence.
func parseConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.DefaultConfidence
		}
		f = p
		if strings.HasSuffix(strings.TrimSpace(t), "%") {
			f /= 100
		}
	default:
		return domain.DefaultConfidence
	}

	if f > 1 && f <= 100 {
		f /= 100
	}
	switch {
	case math.IsNaN(f):
		return domain.DefaultConfidence
	case f <= 0:
		return MinConfidence
	case f > 1:
		return 1
	}
	return f
}

// parseInsights reads a list of strings, dropping blanks.
func parseInsights(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}
