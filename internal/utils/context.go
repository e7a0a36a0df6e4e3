package utils

import (
	"context"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

type contextKey string

const (
	ContextUserIDKey contextKey = "userID"
	ContextRoleKey   contextKey = "role"
	ContextAuthKey   contextKey = "authSession"
	ContextRestored  contextKey = "restoredSession"
)

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok && userIDStr != ""
}

func GetRoleFromContext(ctx context.Context) (roles.Role, bool) {
	role, ok := ctx.Value(ContextRoleKey).(roles.Role)
	return role, ok
}

// WithPrincipal stores the authorized caller.
func WithPrincipal(ctx context.Context, userID string, role roles.Role) context.Context {
	ctx = context.WithValue(ctx, ContextUserIDKey, userID)
	return context.WithValue(ctx, ContextRoleKey, role)
}

func WithAuthSession(ctx context.Context, auth identity.AuthSession) context.Context {
	return context.WithValue(ctx, ContextAuthKey, auth)
}

func GetAuthSessionFromContext(ctx context.Context) (identity.AuthSession, bool) {
	auth, ok := ctx.Value(ContextAuthKey).(identity.AuthSession)
	return auth, ok && auth != nil
}

// WithRestoredSession records a session SessionMiddleware restored from the
// refresh cookie during this request.
func WithRestoredSession(ctx context.Context, sess *identity.Session) context.Context {
	return context.WithValue(ctx, ContextRestored, sess)
}

func GetRestoredSessionFromContext(ctx context.Context) (*identity.Session, bool) {
	sess, ok := ctx.Value(ContextRestored).(*identity.Session)
	return sess, ok && sess != nil
}
