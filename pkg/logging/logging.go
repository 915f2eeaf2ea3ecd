package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog so every component gets a named logger without
// threading the handler through constructors.
type Logger struct {
	inner *slog.Logger
}

// Init installs the process-wide handler. JSON in prod so the collector
// can parse it, text locally.
func Init(isProd bool) {
	options := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	var handler slog.Handler
	if isProd {
		options.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(os.Stdout, options)
	} else {
		handler = slog.NewTextHandler(os.Stdout, options)
	}
	slog.SetDefault(slog.New(handler))
}

func NewLogger(component string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", component),
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

// WithTrace is the per-message variant of With; kept separate so call
// sites read as what they are.
func (l *Logger) WithTrace(traceID string) *Logger {
	return l.With("traceId", traceID)
}
