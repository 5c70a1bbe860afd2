package webutil

import "context"

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

type contextKey string

const contextKeyUserID contextKey = "userID"

// WithUserID returns a copy of ctx carrying the authenticated user's ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// UserIDFromContext returns the authenticated user's ID, or "" outside an
// authenticated request.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyUserID).(string)
	return v
}
