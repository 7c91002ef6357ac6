package context

import (
	"context"

	"stockledger/internal/core/id"
)

// RequestTrace identifies one request across log lines and audit rows.
type RequestTrace struct {
	TraceID   string
	RequestID string
}

type requestTraceKey struct{}

// NewRequestTrace generates a trace with fresh IDs.
func NewRequestTrace() RequestTrace {
	return RequestTrace{
		TraceID:   id.New().String(),
		RequestID: id.New().String(),
	}
}

// WithTrace attaches the trace to the context.
func WithTrace(ctx context.Context, t RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceKey{}, t)
}

// GetTrace returns the trace carried by the context, if any.
func GetTrace(ctx context.Context) (RequestTrace, bool) {
	t, ok := ctx.Value(requestTraceKey{}).(RequestTrace)
	return t, ok
}

// GetTraceID returns the trace ID, generating one when the context has none.
func GetTraceID(ctx context.Context) string {
	if t, ok := GetTrace(ctx); ok {
		return t.TraceID
	}
	return id.New().String()
}

// GetRequestID returns the request ID or an empty string.
func GetRequestID(ctx context.Context) string {
	if t, ok := GetTrace(ctx); ok {
		return t.RequestID
	}
	return ""
}
