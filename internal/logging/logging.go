package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a leveled, key-value logger for the service.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger writing text output to stdout.
func NewLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}

// NewNopLogger returns a Logger that discards all output. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// With returns a Logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
