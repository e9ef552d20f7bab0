package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFillDefaults verifies missing and mistyped fields are replaced while
// valid content is kept and defaults are never aliased.
func TestFillDefaults(t *testing.T) {
	defaults := map[string]any{
		"guard":  map[string]any{"type": "unknown", "retention": "unknown"},
		"events": []any{},
		"count":  0.0,
	}
	data := map[string]any{
		"guard":  map[string]any{"type": "closed"},
		"events": "none",
		"count":  map[string]any{"oops": true},
		"extra":  "kept",
	}

	fillDefaults(data, defaults)

	assert.Equal(t, map[string]any{"type": "closed", "retention": "unknown"}, data["guard"])
	assert.Equal(t, []any{}, data["events"])
	assert.Equal(t, 0.0, data["count"])
	assert.Equal(t, "kept", data["extra"])

	data["events"] = append(data["events"].([]any), "x")
	assert.Empty(t, defaults["events"])
}

func TestParseInsights(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseInsights([]any{" a ", 3.0, "", "b"}))
	assert.Equal(t, []string{"single"}, parseInsights("single"))
	assert.Nil(t, parseInsights(nil))
}
