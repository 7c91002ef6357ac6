package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace propagates or generates trace and request IDs for each request
// and echoes them back in the response headers.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.RequestTrace{
			TraceID:   c.GetHeader(HeaderTraceID),
			RequestID: c.GetHeader(HeaderRequestID),
		}
		if trace.TraceID == "" {
			trace.TraceID = id.New().String()
		}
		if trace.RequestID == "" {
			trace.RequestID = id.New().String()
		}

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", trace.TraceID)
		c.Set("request_id", trace.RequestID)

		c.Header(HeaderRequestID, trace.RequestID)
		c.Header(HeaderTraceID, trace.TraceID)

		c.Next()
	}
}
