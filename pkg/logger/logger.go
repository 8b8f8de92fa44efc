// Package logger configures the process-wide structured logger.
//
// All packages log through log/slog; this package owns handler setup so the
// CLI and server can switch between human-readable text and JSON output.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger = slog.Default()

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown strings fall back to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the global logger. Format is "text" or "json".
func Init(level slog.Level, output *os.File, format string) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Get returns the configured logger.
func Get() *slog.Logger {
	return defaultLogger
}
