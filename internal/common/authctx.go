package common

import "context"

type ctxKey struct{}

var userIDKey ctxKey

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context.
// An empty identifier is treated as absent.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
