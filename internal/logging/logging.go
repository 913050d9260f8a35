// Package logging builds the process-wide slog.Logger.
//
// Text output goes through tint (colored, human-friendly, for local runs);
// json output uses the standard JSON handler for log shippers.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a logger writing to w in the given format ("text" or "json")
// and installs it as the slog default so package-level slog calls agree.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Discard is a logger for tests that only want errors surfaced.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
