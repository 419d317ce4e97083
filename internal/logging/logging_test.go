package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("peer_connected", "peer_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "peer_connected", entry["msg"])
	assert.Equal(t, "abc", entry["peer_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "debug", "text")

	logger.Debug("fudi_recv", "message", "0 get selection")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "msg=fudi_recv")
	assert.Contains(t, buf.String(), `message="0 get selection"`)
}

func TestNew_SetsDefault(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	logger := New("warn", "text")

	assert.Same(t, logger, slog.Default())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
