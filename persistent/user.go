package persistent

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/zipcard/zipcard"
)

type User struct {
	bun.BaseModel `bun:"table:user"`

	Id        int64     `bun:",pk,autoincrement"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Username  string    `bun:",notnull,unique"`
	Email     string    `bun:"email,notnull,unique"`
}

func (u User) ToDomain() zipcard.User {
	return zipcard.User{
		Id:        zipcard.UserId(u.Id),
		CreatedAt: u.CreatedAt,
		Username:  u.Username,
		Email:     u.Email,
	}
}

type UserStore struct {
	DB *bun.DB
}

var _ zipcard.UserStore = (*UserStore)(nil)

func (s *UserStore) Register(ctx context.Context, username string, email string) (zipcard.User, error) {
	user := &User{
		Username: username,
		Email:    email,
	}
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(user).
			On(`CONFLICT (email) DO UPDATE SET email=EXCLUDED.email`).
			Exec(ctx)
		if err != nil {
			return err
		}
		return tx.NewSelect().
			Model(user).
			Where(`email=?`, email).
			Scan(ctx)
	})
	if err != nil {
		return zipcard.User{}, &zipcard.StorageError{Op: "register user", Err: err}
	}
	return user.ToDomain(), nil
}

func (s *UserStore) ById(ctx context.Context, id zipcard.UserId) (zipcard.User, error) {
	user := new(User)
	err := s.DB.NewSelect().
		Model(user).
		Where(`id=?`, int64(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zipcard.User{}, zipcard.ErrUserNotFound
		}
		return zipcard.User{}, &zipcard.StorageError{Op: "select user", Err: err}
	}
	return user.ToDomain(), nil
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (zipcard.User, error) {
	user := new(User)
	err := s.DB.NewSelect().
		Model(user).
		Where(`username=?`, username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zipcard.User{}, zipcard.ErrUserNotFound
		}
		return zipcard.User{}, &zipcard.StorageError{Op: "select user", Err: err}
	}
	return user.ToDomain(), nil
}
