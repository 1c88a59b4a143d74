package persistent

import (
	"context"
	crand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"github.com/zipcard/zipcard"
)

const sessionTTL = 30 * 24 * time.Hour // 30 days

type Session struct {
	Id             string    `json:"id"`
	UserId         int64     `json:"userId"`
	Token          string    `json:"token"`
	Ip             string    `json:"ip"`
	UserAgent      string    `json:"userAgent"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (s Session) ToDomain() zipcard.Session {
	return zipcard.Session{
		Id:             s.Id,
		UserId:         zipcard.UserId(s.UserId),
		Token:          s.Token,
		Ip:             s.Ip,
		UserAgent:      s.UserAgent,
		LastAccessedAt: s.LastAccessedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

type SessionStore struct {
	Buntdb *buntdb.DB
}

var _ zipcard.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) RegisterNew(ctx context.Context, userId zipcard.UserId, ip string, userAgent string) (zipcard.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return zipcard.Session{}, fmt.Errorf("generate token: %w", err)
	}

	session := Session{
		Id:             uuid.New().String(),
		UserId:         int64(userId),
		Token:          token,
		Ip:             ip,
		UserAgent:      userAgent,
		LastAccessedAt: time.Now().UTC(),
		ExpiresAt:      time.Now().UTC().Add(sessionTTL),
	}
	serialized, err := json.Marshal(&session)
	if err != nil {
		return zipcard.Session{}, fmt.Errorf("session serialize: %w", err)
	}

	err = s.Buntdb.Update(func(tx *buntdb.Tx) error {
		options := &buntdb.SetOptions{Expires: true, TTL: sessionTTL}
		_, _, err := tx.Set("session:"+session.Token, string(serialized), options)
		return err
	})
	if err != nil {
		return zipcard.Session{}, fmt.Errorf("bunt update: %w", err)
	}
	return session.ToDomain(), nil
}

func (s *SessionStore) AcquireAndRefresh(ctx context.Context, token string, ip string, userAgent string) (zipcard.Session, error) {
	var session Session
	err := s.Buntdb.View(func(tx *buntdb.Tx) error {
		serialized, err := tx.Get("session:" + token)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(serialized), &session)
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return zipcard.Session{}, zipcard.ErrSessionNotFound
		}
		return zipcard.Session{}, fmt.Errorf("buntdb view: %w", err)
	}

	session.Ip = ip
	session.UserAgent = userAgent
	session.LastAccessedAt = time.Now().UTC()
	session.ExpiresAt = time.Now().UTC().Add(sessionTTL)
	serialized, err := json.Marshal(&session)
	if err != nil {
		return zipcard.Session{}, fmt.Errorf("session serialize: %w", err)
	}
	err = s.Buntdb.Update(func(tx *buntdb.Tx) error {
		options := &buntdb.SetOptions{Expires: true, TTL: sessionTTL}
		_, _, err := tx.Set("session:"+session.Token, string(serialized), options)
		return err
	})
	if err != nil {
		return zipcard.Session{}, fmt.Errorf("bunt update: %w", err)
	}
	return session.ToDomain(), nil
}

func (s *SessionStore) InvalidateByAuthToken(authToken string) error {
	err := s.Buntdb.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("session:" + authToken)
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("bunt update: %w", err)
	}
	return nil
}

func generateSessionToken() (string, error) {
	raw := make([]byte, 33)
	if _, err := crand.Read(raw); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(raw)
	// keep buntdb key queries injection safe
	return strings.Replace(token, ":", "_", -1), nil
}
