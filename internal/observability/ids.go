package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	SessionIDKey contextKey = "session_id"
)

func NewRequestID() string {
	return uuid.New().String()
}

// RequestIDOrNew returns id when it is a well-formed UUID. Anything else,
// including an empty header, gets a fresh one so clients cannot inject
// arbitrary strings into logs.
func RequestIDOrNew(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return NewRequestID()
	}
	return parsed.String()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// ContextWithSessionID tags ctx with the calculator session being served.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, SessionIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
