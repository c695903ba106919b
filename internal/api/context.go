package api

import (
	"context"

	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

type contextKey string

func (c contextKey) String() string {
	return "api context key " + string(c)
}

const userKey = contextKey("user")

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func getUser(ctx context.Context) *models.User {
	obj := ctx.Value(userKey)
	if obj == nil {
		return nil
	}
	return obj.(*models.User)
}
