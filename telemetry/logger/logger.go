// Package logger is a thin structured-logging wrapper around log/slog, used
// throughout the module in place of the standard library's bare slog so
// that call sites share one level-parsing and trace-correlation policy.
package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Logger wraps *slog.Logger, injecting the active span's trace id into every
// record so logs and traces can be correlated in the backend.
type Logger struct {
	slog *slog.Logger
}

type options struct {
	level  slog.Level
	output *os.File
	json   bool
}

// Option configures a Logger built by New.
type Option func(*options)

// WithLevel sets the minimum level by name: "debug", "info", "warn", or
// "error". Unrecognized names fall back to "info".
func WithLevel(level string) Option {
	return func(o *options) {
		switch level {
		case "debug":
			o.level = slog.LevelDebug
		case "warn", "warning":
			o.level = slog.LevelWarn
		case "error":
			o.level = slog.LevelError
		default:
			o.level = slog.LevelInfo
		}
	}
}

// WithOutput overrides the destination, which defaults to os.Stdout.
func WithOutput(f *os.File) Option {
	return func(o *options) { o.output = f }
}

// WithJSON switches the handler to JSON output. Text output is the default,
// matching a developer's terminal; production deployments should pass this.
func WithJSON(enabled bool) Option {
	return func(o *options) { o.json = enabled }
}

// New builds a Logger. With no options it logs text at info level to stdout.
func New(opts ...Option) *Logger {
	o := options{level: slog.LevelInfo, output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}
	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}
	return &Logger{slog: slog.New(handler)}
}

func (l *Logger) withTrace(ctx context.Context, kv []any) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return kv
	}
	return append(kv, "trace_id", spanCtx.TraceID().String(), "span_id", spanCtx.SpanID().String())
}

// Debug logs at debug level. kv is alternating key/value pairs, as with
// slog.Logger.Log.
func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.slog.DebugContext(ctx, msg, l.withTrace(ctx, kv)...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.slog.InfoContext(ctx, msg, l.withTrace(ctx, kv)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.slog.WarnContext(ctx, msg, l.withTrace(ctx, kv)...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.slog.ErrorContext(ctx, msg, l.withTrace(ctx, kv)...)
}

// With returns a child Logger that prepends kv to every record it emits.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{slog: l.slog.With(kv...)}
}
