package auth

import "context"

type contextKey string

const userIDKey contextKey = "resumos-user-id"

// WithUserID returns a child context carrying the verified user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the verified user id placed by the credential guard.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}
