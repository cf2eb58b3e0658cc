// Package requestcontext carries request-scoped values that services read
// without importing net/http. HTTP middleware sets them; tests set them
// directly.
package requestcontext

import (
	"context"
	"log/slog"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// LogAttr is the request_id attribute attached to every request-scoped log line.
func LogAttr(ctx context.Context) slog.Attr {
	return slog.String("request_id", RequestID(ctx))
}

// Now returns the time pinned for this request in UTC, or the wall clock
// when nothing was pinned (background work, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t.UTC()
	}
	return time.Now().UTC()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
