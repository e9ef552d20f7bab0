package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-fightlens/internal/logging"
)

// TestNew_Formats verifies explicit formats and level filtering.
func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: `"msg":"hello"`},
		{format: "text", want: "msg=hello"},
		{format: "auto", want: `"msg":"hello"`}, // buffers are never terminals
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New(logging.Config{Level: "warn", Format: tt.format, Output: &buf})
			logger.Info("dropped")
			logger.Warn("hello")
			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), "dropped")
		})
	}
}

// TestNew_RedactsKeys verifies credentials never reach the output.
func TestNew_RedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Format: "json", Output: &buf})

	key := "sk-abcdefghijklmnopqrstuvwxyz012345"
	logger.With("auth", "Bearer "+key).Info("calling with "+key, slog.Group("g", slog.String("k", key)))

	assert.NotContains(t, buf.String(), key)
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("nonsense"))
}
