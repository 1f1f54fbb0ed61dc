package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with the fatal-and-exit helper the booking
// core's startup path needs alongside slog's usual leveled methods.
type Logger struct {
	*slog.Logger
}

// New creates a new logger at the given level (case-insensitive; an
// unrecognized value falls back to info rather than failing startup).
func New(level string) *Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return &Logger{Logger: logger}
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
