// Package logger builds the zap loggers used across the achievement engine.
// It supports log levels, structured fields, and context propagation.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Encoding is "json" or "console".
	Encoding string

	// Output defaults to stdout.
	Output io.Writer

	// AddCaller adds file:line to every entry.
	AddCaller bool
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Level:     "info",
		Encoding:  "json",
		Output:    os.Stdout,
		AddCaller: true,
	}
}

// New builds a zap.Logger using the provided options.
func New(opts Options) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(strings.TrimSpace(opts.Level))); err != nil {
		// fall back to info level if parsing fails
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch opts.Encoding {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)

	var zopts []zap.Option
	if opts.AddCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(core, zopts...)
}

// Default creates a logger with default options.
func Default() *zap.Logger {
	return New(DefaultOptions())
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Context key for logger.
type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// Engine-related logging helpers.
func UserID(id string) zap.Field          { return zap.String("user_id", id) }
func OrganizationID(id string) zap.Field  { return zap.String("organization_id", id) }
func WorkspaceID(id string) zap.Field     { return zap.String("workspace_id", id) }
func Code(code string) zap.Field          { return zap.String("achievement_code", code) }
func RunID(id string) zap.Field           { return zap.String("run_id", id) }
func Component(name string) zap.Field     { return zap.String("component", name) }
func Operation(name string) zap.Field     { return zap.String("operation", name) }
func Latency(d time.Duration) zap.Field   { return zap.Duration("latency", d) }
func ActionType(action string) zap.Field  { return zap.String("action_type", action) }
func RankingKind(kind string) zap.Field   { return zap.String("ranking_kind", kind) }
func JobName(name string) zap.Field       { return zap.String("job", name) }
func EvaluationAt(t time.Time) zap.Field  { return zap.Time("as_of", t) }
