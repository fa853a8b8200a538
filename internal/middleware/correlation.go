// Package middleware contains Gin middleware for the application.
package middleware

import (
	"github.com/chatmesh/server/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// correlationIDSpanAttr lets a trace be searched by the same correlation ID
// that appears in every log line for the request, tying the ambient log
// and tracing stacks together.
const correlationIDSpanAttr = "chatmesh.correlation_id"

// CorrelationID adds a correlation ID to the request context, and, when
// otelgin has already started a span for this request, attaches the same
// ID as a span attribute so a trace and its logs can be cross-referenced.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// Set in header for response
		c.Header(HeaderXCorrelationID, correlationID)

		// Set in context for logger
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), correlationID))

		if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().IsValid() {
			span.SetAttributes(attribute.String(correlationIDSpanAttr, correlationID))
		}

		// Pass to next handlers
		c.Next()
	}
}
