package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

// ContextWithLogger кладёт request-scoped logger в контекст
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext возвращает logger, положенный ContextWithLogger, или nil
func LoggerFromContext(ctx context.Context) *zap.Logger {
	logger, _ := ctx.Value(loggerKey{}).(*zap.Logger)
	return logger
}

// WithTrace дописывает к base trace_id и span_id активного span
func WithTrace(ctx context.Context, base *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return base
	}
	return base.With(
		zap.Stringer("trace_id", sc.TraceID()),
		zap.Stringer("span_id", sc.SpanID()),
	)
}

// FromContext logger запроса, а вне HTTP запроса base с полями трассы
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return WithTrace(ctx, base)
}
