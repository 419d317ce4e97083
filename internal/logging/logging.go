package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger on stdout and makes it the default.
// format is "json" or "text"; unknown levels fall back to info.
func New(level, format string) *slog.Logger {
	logger := NewWriter(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewWriter is New without touching the default logger
func NewWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard is a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
