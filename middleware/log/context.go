package logger

import (
	"context"

	"github.com/google/uuid"
)

// TraceHeader is the HTTP header a caller may use to supply its own trace ID
const TraceHeader = "X-Trace-ID"

// WithTraceID adds a trace ID to the context, generating one when traceID is empty
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace ID from the context, or "" if none is set
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// NewTraceID generates a new UUID v4 trace ID
func NewTraceID() string {
	return uuid.New().String()
}
