package prompt_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/prompt"
)

func analysisData() prompt.AnalysisData {
	rs, _ := prompt.LookupRuleSet("ibjjf")
	return prompt.AnalysisData{
		Subject:       "Athlete A",
		Discriminator: "blue gi",
		RuleSet:       rs,
		FocusAreas:    []string{"guard", "passing"},
		CallerFocus:   "grip fighting",
		Shape:         `{"guard": {}}`,
	}
}

// TestEmbedded_RendersEveryTemplate verifies the built-in pack parses and
// fills each specialist template.
func TestEmbedded_RendersEveryTemplate(t *testing.T) {
	c := prompt.NewCache(nil)
	require.NoError(t, c.Load())

	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"rules", "synthesis", "tactical", "technical"}, ids)

	for _, id := range []string{"technical", "tactical", "rules"} {
		t.Run(id, func(t *testing.T) {
			r, err := c.Render(id, analysisData())
			require.NoError(t, err)
			assert.NotEmpty(t, r.System)
			assert.Contains(t, r.User, "Athlete A (blue gi)")
			assert.Contains(t, r.User, "guard, passing")
			assert.Contains(t, r.User, "grip fighting")
			assert.Contains(t, r.User, "IBJJF")
			assert.Contains(t, r.User, `{"guard": {}}`)
		})
	}
}

// TestEmbedded_Synthesis verifies agent reports are rendered.
func TestEmbedded_Synthesis(t *testing.T) {
	c := prompt.NewCache(nil)
	r, err := c.Render("synthesis", prompt.SynthesisData{
		Subject: "Athlete A",
		RuleSet: prompt.DefaultRuleSet,
		Agents: []prompt.AgentReport{
			{Name: "technical", Confidence: 0.8, Insights: []string{"strong closed guard"}, Payload: `{"guard": 1}`},
			{Name: "rules", Error: "timeout"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, r.User, "## technical (confidence 80%)")
	assert.Contains(t, r.User, "- strong closed guard")
	assert.Contains(t, r.User, "failed: timeout")
	assert.Contains(t, r.System, "higher confidence")
}

// TestCache_LazyLoadAndInvalidate verifies misses read from the file system
// and invalidation picks up new content.
func TestCache_LazyLoadAndInvalidate(t *testing.T) {
	fsys := fstest.MapFS{
		"greet.yaml": {Data: []byte("user: hello {{.}}\n")},
	}
	c := prompt.NewCache(fsys)

	r, err := c.Render("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", r.User)

	fsys["greet.yaml"] = &fstest.MapFile{Data: []byte("user: goodbye {{.}}\n")}
	r, err = c.Render("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", r.User, "cached until invalidated")

	c.Invalidate("greet")
	r, err = c.Render("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "goodbye world", r.User)

	_, err = c.Render("missing", nil)
	assert.ErrorIs(t, err, prompt.ErrTemplateNotFound)
}

// TestCache_ReloadKeepsPreviousOnError verifies a broken file does not
// replace a loaded pack.
func TestCache_ReloadKeepsPreviousOnError(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte("id: a\nuser: first\n")},
	}
	c := prompt.NewCache(fsys)
	require.NoError(t, c.Load())

	fsys["b.yaml"] = &fstest.MapFile{Data: []byte("user: '{{.Broken'\n")}
	err := c.Reload()
	require.ErrorIs(t, err, prompt.ErrInvalidTemplate)

	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":   "user: [unclosed",
		"empty user": "system: hi\n",
		"bad syntax": "user: '{{if}}'\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := prompt.ParseTemplate([]byte(src), "x")
			assert.ErrorIs(t, err, prompt.ErrInvalidTemplate)
		})
	}
}

func TestLookupRuleSet(t *testing.T) {
	r, ok := prompt.LookupRuleSet("IBJJF")
	require.True(t, ok)
	assert.Contains(t, r.Text(), "mount 4")

	r, ok = prompt.LookupRuleSet("submission-only")
	require.True(t, ok)
	assert.Equal(t, "submission_only", r.ID)

	r, ok = prompt.LookupRuleSet("")
	assert.True(t, ok)
	assert.Equal(t, prompt.DefaultRuleSet, r)

	r, ok = prompt.LookupRuleSet("Naga")
	assert.False(t, ok)
	assert.Equal(t, "Naga", r.Text())

	assert.Len(t, prompt.RuleSets(), 3)
}
