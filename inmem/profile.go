package inmem

import (
	"context"
	"sync"

	"github.com/zipcard/zipcard"
)

type ProfileStore struct {
	mutex sync.RWMutex
	docs  map[zipcard.UserId]zipcard.ProfileDocument
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{docs: make(map[zipcard.UserId]zipcard.ProfileDocument)}
}

var _ zipcard.ProfileStore = (*ProfileStore)(nil)

func (s *ProfileStore) ByUserId(ctx context.Context, userId zipcard.UserId) (zipcard.ProfileDocument, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	doc, ok := s.docs[userId]
	if !ok {
		return zipcard.ProfileDocument{}, zipcard.ErrProfileNotFound
	}
	return doc, nil
}

func (s *ProfileStore) ByUsername(ctx context.Context, username string) (zipcard.ProfileDocument, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, doc := range s.docs {
		if doc.Username == username {
			return doc, nil
		}
	}
	return zipcard.ProfileDocument{}, zipcard.ErrProfileNotFound
}

func (s *ProfileStore) Save(ctx context.Context, doc zipcard.ProfileDocument) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.docs[doc.UserId] = doc
	return nil
}
