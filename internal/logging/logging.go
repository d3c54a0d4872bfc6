// Package logging provides structured logging using slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"

	// File is an optional per-run log file. When set, log lines go to both
	// the file and stdout.
	File string
}

// Setup initializes the global slog logger based on configuration. It
// returns a close function for the log file (a no-op when none was opened).
func Setup(cfg Config) (func() error, error) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RunLogFile returns the per-run log file name for a dataset.
func RunLogFile(dataset string) string {
	return fmt.Sprintf("%s_logger.log", dataset)
}

// Component returns a logger with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}

// WorkerLogger creates a logger with worker context.
func WorkerLogger(workerID int) *slog.Logger {
	return slog.With("worker_id", workerID)
}

// TaskLogger creates a logger with per-coordinate task context.
func TaskLogger(dataset string, lat, lon float64) *slog.Logger {
	return slog.With(
		"dataset", dataset,
		"lat", lat,
		"lon", lon,
	)
}
