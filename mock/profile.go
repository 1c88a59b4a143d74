package mock

import (
	"context"

	"github.com/zipcard/zipcard"
)

type ProfileService struct {
	ByUserIdFn   func(ctx context.Context, userId zipcard.UserId) (zipcard.ProfileDocument, error)
	ByUsernameFn func(ctx context.Context, username string) (zipcard.ProfileDocument, error)
	SaveFn       func(ctx context.Context, doc zipcard.ProfileDocument) error
}

func (s *ProfileService) ByUserId(ctx context.Context, userId zipcard.UserId) (zipcard.ProfileDocument, error) {
	return s.ByUserIdFn(ctx, userId)
}

func (s *ProfileService) ByUsername(ctx context.Context, username string) (zipcard.ProfileDocument, error) {
	return s.ByUsernameFn(ctx, username)
}

func (s *ProfileService) Save(ctx context.Context, doc zipcard.ProfileDocument) error {
	return s.SaveFn(ctx, doc)
}
