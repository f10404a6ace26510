// Package logger wraps zap for the report service. Entries logged through a
// context carry the request trace and the report run they belong to.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "stockledger/internal/core/context"
)

// Logger is a zap SugaredLogger; the Infow/Warnw/Errorw family comes from it.
type Logger struct {
	*zap.SugaredLogger
}

type loggerKey struct{}

// Config selects level and encoding.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	// Encoding is json or console; empty keeps the preset's encoding.
	Encoding      string
	InitialFields map[string]any
}

// New builds a logger. An unknown level falls back to info.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level)
	if cfg.Encoding != "" {
		config.Encoding = cfg.Encoding
	}
	config.InitialFields = cfg.InitialFields

	zl, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zl.Sugar()}, nil
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// fallbackLogger serves contexts that carry no logger, e.g. in tests.
func fallbackLogger() *Logger {
	fallbackOnce.Do(func() {
		zl, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			zl = zap.NewNop()
		}
		fallback = &Logger{zl.Sugar()}
	})
	return fallback
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// WithContext attaches trace ids and run info found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sugar := l.SugaredLogger
	if trace := appctx.GetTrace(ctx); trace != nil {
		sugar = sugar.With("trace_id", trace.TraceID, "request_id", trace.RequestID)
	}
	if run := appctx.GetRun(ctx); run != nil {
		sugar = sugar.With("run_id", run.RunID, "report", run.Report)
	}
	return &Logger{sugar}
}

// WithComponent tags entries with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, enriched with its trace and run.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return fallbackLogger().WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}
