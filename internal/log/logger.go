// Package log wraps slog with the component-tagged structured logging
// shared by the syndic binaries. The logger lives here; the canonical
// field and component names live in fields.go.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger stamps every record with the emitting component on top of the
// embedded slog.Logger.
type Logger struct {
	*slog.Logger
	component string
}

// Config controls the handler, level and component tag of a new logger.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// DefaultConfig is what the binaries start from: text output on stdout,
// Info level unless LOG_LEVEL says otherwise.
func DefaultConfig() Config {
	return Config{
		Level:     levelFromEnv(),
		Component: "syndic",
	}
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger from config. A nil Handler means a text handler
// on stdout at the configured level.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	return &Logger{
		Logger:    slog.New(handler),
		component: config.Component,
	}
}

// With returns a logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

// Info logs at Info level with the component tag.
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{FieldComponent, l.component}, args...)...)
}

// Warn logs at Warn level with the component tag.
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{FieldComponent, l.component}, args...)...)
}

// Error logs at Error level with the component tag.
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{FieldComponent, l.component}, args...)...)
}

// SetDefault routes the package-level slog calls through logger, so the
// services and the billing engine pick up the same handler as the
// binary that wired them.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
