// Package requestctx carries the authenticated identity through a request's context.
package requestctx

import (
	"context"

	"taskhub/internal/model"
)

type userContextKey struct{}

// WithUser stores the authenticated user's public view in ctx.
func WithUser(ctx context.Context, user model.PublicUser) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
	if ctx == nil {
		return model.PublicUser{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(model.PublicUser)
	return user, ok
}
