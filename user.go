package zipcard

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

type UserId int64

type User struct {
	Id        UserId
	CreatedAt time.Time
	Username  string
	Email     string
}

type UserStore interface {
	// Register creates the user or, when the email is already registered,
	// returns the existing account.
	Register(ctx context.Context, username string, email string) (User, error)

	ById(ctx context.Context, id UserId) (User, error)

	ByUsername(ctx context.Context, username string) (User, error)
}
