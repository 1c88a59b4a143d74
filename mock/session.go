package mock

import (
	"context"

	"github.com/zipcard/zipcard"
)

type SessionStore struct {
	RegisterNewFn           func(ctx context.Context, userId zipcard.UserId, ip string, userAgent string) (zipcard.Session, error)
	AcquireAndRefreshFn     func(ctx context.Context, token string, ip string, userAgent string) (zipcard.Session, error)
	InvalidateByAuthTokenFn func(authToken string) error
}

func (s *SessionStore) RegisterNew(ctx context.Context, userId zipcard.UserId, ip string, userAgent string) (zipcard.Session, error) {
	return s.RegisterNewFn(ctx, userId, ip, userAgent)
}

func (s *SessionStore) AcquireAndRefresh(ctx context.Context, token string, ip string, userAgent string) (zipcard.Session, error) {
	return s.AcquireAndRefreshFn(ctx, token, ip, userAgent)
}

func (s *SessionStore) InvalidateByAuthToken(authToken string) error {
	return s.InvalidateByAuthTokenFn(authToken)
}
