package mock

import (
	"context"

	"github.com/zipcard/zipcard"
)

type UserStore struct {
	RegisterFn   func(ctx context.Context, username string, email string) (zipcard.User, error)
	ByIdFn       func(ctx context.Context, userId zipcard.UserId) (zipcard.User, error)
	ByUsernameFn func(ctx context.Context, username string) (zipcard.User, error)
}

func (s *UserStore) Register(ctx context.Context, username string, email string) (zipcard.User, error) {
	return s.RegisterFn(ctx, username, email)
}

func (s *UserStore) ById(ctx context.Context, userId zipcard.UserId) (zipcard.User, error) {
	return s.ByIdFn(ctx, userId)
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (zipcard.User, error) {
	return s.ByUsernameFn(ctx, username)
}
