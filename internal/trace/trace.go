// Package trace provides the ambient context binding for per-turn identity.
// The trace ID and session ID ride the context so emitters and backends do
// not need them threaded through every call signature. The turn deadline
// rides the same context via the standard context deadline machinery.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	traceIDKey contextKey = iota
	sessionIDKey
)

// WithTraceID binds a trace ID to the context. An empty id generates one.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID returns the bound trace ID, or "" if none is bound.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSessionID binds a session ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID returns the bound session ID, or "" if none is bound.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
