package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/telemetry"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig returns the otelgin server-span middleware, or a
// pass-through when tracing is disabled. Register SpanAttributes right after
// it so the span is still open when the chain finishes.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes tags the server span, once the handler chain has run, with
// the request id, the bound tenant and the user, and marks it failed for 5xx
// responses.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := logger.GetRequestID(c.Request.Context()); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	// Only identifiers that passed validation reach the gin context; the
	// raw header never lands on a span.
	if tenantID := GetTenantID(c); tenantID != "" && tenancy.IsValidIdentifier(tenantID) {
		span.SetAttributes(attribute.String(telemetry.SpanAttrTenantID, tenantID))
	}
	if userID := GetJWTUserID(c); userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
	if status := c.Writer.Status(); status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
