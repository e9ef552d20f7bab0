package costlog_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-fightlens/internal/costlog"
	"github.com/ahrav/go-fightlens/internal/domain"
)

func TestSQLiteLogger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "costs.db")

	l, err := costlog.OpenSQLite(ctx, path)
	require.NoError(t, err)

	entries := []costlog.Entry{
		{RequestID: "r1", Label: "technical", Operation: "analysis", Model: "gpt-4o", PromptTokens: 1000, CompletionTokens: 200, Cost: 450},
		{RequestID: "r1", Label: "synthesis", Operation: "synthesis", Model: "gpt-4o-mini", PromptTokens: 3000, CompletionTokens: 500, Cost: 75},
		{RequestID: "r2", Label: "rules", Operation: "analysis", Model: "gpt-4o", PromptTokens: 10, Cost: 3},
	}
	for _, e := range entries {
		require.NoError(t, l.Log(ctx, e))
	}

	s, err := l.RequestSummary(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, costlog.Summary{Calls: 2, PromptTokens: 4000, CompletionTokens: 700, Cost: 525}, s)

	got, err := l.Entries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "synthesis", got[1].Label)
	assert.False(t, got[0].RecordedAt.IsZero())

	empty, err := l.RequestSummary(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, empty.Calls)

	require.NoError(t, l.Close())

	// Reopening keeps data and accepts the recorded schema version.
	l, err = costlog.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	s, err = l.RequestSummary(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, domain.MilliCents(3), s.Cost)
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := costlog.NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, l.Log(context.Background(), costlog.Entry{RequestID: "r1", Label: "technical", Model: "gpt-4o", Cost: 1234}))
	assert.Contains(t, buf.String(), `"cost_milli_cents":1234`)
	assert.Contains(t, buf.String(), `"cost":"$0.01234"`)
	assert.NoError(t, costlog.NopLogger{}.Log(context.Background(), costlog.Entry{}))
}
