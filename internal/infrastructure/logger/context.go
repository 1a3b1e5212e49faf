package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/tenancy"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request id on ctx and attaches a logger carrying it
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, logger.With(zap.String("request_id", requestID)))
}

// GetRequestID retrieves the request id from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ContextFields returns the correlation fields found on ctx: trace and span
// ids, and the tenant currently bound to the unit of work.
// The request id is not included because the context logger already carries it.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	// Read at log time: the tenant can be bound after the logger was attached.
	if tenantID, ok := tenancy.Current(ctx); ok {
		fields = append(fields, zap.String("tenant_id", tenantID))
	}
	return fields
}

// L returns the context logger enriched with ContextFields.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	if fields := ContextFields(ctx); len(fields) > 0 {
		l = l.With(fields...)
	}
	return l
}
