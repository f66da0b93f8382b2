package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger creates a dual-output logger: text to stderr, JSON to file.
// A nil stderr logs to the file only, which keeps an interactive progress
// display clean. An empty logFile logs to stderr only. Returns the logger
// and a cleanup function to close the file.
func SetupLogger(logFile string, level slog.Level, stderr io.Writer) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if stderr != nil {
		// Stderr handler (text for readability)
		handlers = append(handlers, slog.NewTextHandler(stderr, opts))
	}

	if logFile == "" {
		return newLogger(handlers), noop
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Fall back to stderr-only if file fails
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		if stderr == nil {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
		return newLogger(handlers), noop
	}

	// File handler (JSON for machine parsing)
	handlers = append(handlers, slog.NewJSONHandler(file, opts))
	return newLogger(handlers), file.Close
}

func newLogger(handlers []slog.Handler) *slog.Logger {
	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(slogmulti.Fanout(handlers...))
	}
}
