package logging

import (
	"context"
)

type contextKey string

const (
	// RequestIDKey is the context key and log attribute for request IDs.
	RequestIDKey contextKey = "request_id"

	// UserKey is the context key and log attribute for the acting user.
	UserKey contextKey = "user_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithUser adds a user identifier to the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// User retrieves the user identifier from the context.
func User(ctx context.Context) string {
	user, _ := ctx.Value(UserKey).(string)
	return user
}
