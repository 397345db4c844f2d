package auth

import (
	"context"

	"geomon/internal/models"
)

type ctxKey string

const userKey ctxKey = "currentUser"

// WithUser stores the authenticated user resolved by the middleware.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, or nil when the
// request carried no valid token.
func UserFromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}
