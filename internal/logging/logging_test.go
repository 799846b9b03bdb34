package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	var text, json bytes.Buffer
	NewLoggerWithWriter(slog.LevelInfo, "text", &text).Info("flush", "task", 7)
	NewLoggerWithWriter(slog.LevelInfo, "JSON", &json).Info("flush", "task", 7)

	assert.Contains(t, text.String(), "msg=flush")
	assert.Contains(t, text.String(), "task=7")
	assert.Contains(t, json.String(), `"msg":"flush"`)
	assert.Contains(t, json.String(), `"task":7`)
}

func TestNewLoggerWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf).With("component", "pump")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=pump")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}
