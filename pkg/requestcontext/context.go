// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, machines and services read
// them, tests inject them. Keeping this package free of net/http lets the
// flow machines depend on it without pulling transport code.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	userAgentKey   struct{}
	sessionIDKey   struct{}
)

// RequestID retrieves the request ID from the context, or "" if not set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now retrieves the request-scoped time from the context, falling back to
// the wall clock when none was set. Machines take their clock from here so
// tests can pin time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// UserAgent retrieves the caller's user-agent string, or "" if not set.
// The biometric availability gate reads this.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects a user-agent string into a context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// SessionID retrieves the flow session ID from the context, or "" if not set.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithSessionID injects a flow session ID into a context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}
