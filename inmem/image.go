package inmem

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/zipcard/zipcard"
	"github.com/zipcard/zipcard/imgcodec"
)

// ImageStore keeps encoded payloads in memory with the same validation and
// corruption semantics as the persistent store. Used in tests and local dev.
type ImageStore struct {
	mutex   sync.RWMutex
	records map[string]imageRecord
}

type imageRecord struct {
	ownerProfileId zipcard.UserId
	data           []byte
	mimeType       string
	fileName       string
}

func NewImageStore() *ImageStore {
	return &ImageStore{records: make(map[string]imageRecord)}
}

var _ zipcard.ImageStore = (*ImageStore)(nil)

func (s *ImageStore) Upload(ctx context.Context, upload zipcard.ImageUpload) (string, error) {
	if err := zipcard.ValidateImageUpload(upload.MimeType, len(upload.Bytes)); err != nil {
		return "", err
	}

	id := uuid.New().String()
	s.mutex.Lock()
	s.records[id] = imageRecord{
		ownerProfileId: upload.OwnerProfileId,
		data:           imgcodec.EncodeForStorage(upload.Bytes),
		mimeType:       upload.MimeType,
		fileName:       upload.FileName,
	}
	s.mutex.Unlock()
	return id, nil
}

func (s *ImageStore) Fetch(ctx context.Context, id string) (*zipcard.StoredImage, error) {
	s.mutex.RLock()
	record, ok := s.records[id]
	s.mutex.RUnlock()
	if !ok {
		return nil, nil
	}

	decoded, err := imgcodec.DecodeFromStorage(record.data)
	if err != nil || !imgcodec.Plausible(decoded) {
		return nil, nil
	}
	return &zipcard.StoredImage{
		Id:             id,
		OwnerProfileId: record.ownerProfileId,
		Bytes:          decoded,
		MimeType:       record.mimeType,
		FileName:       record.fileName,
		ByteSize:       len(decoded),
	}, nil
}

func (s *ImageStore) Remove(ctx context.Context, id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

func (s *ImageStore) SweepCorrupted(ctx context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	count := 0
	for id, record := range s.records {
		decoded, err := imgcodec.DecodeFromStorage(record.data)
		if err != nil || !imgcodec.Plausible(decoded) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Corrupt overwrites a stored payload, for tests exercising the
// corruption-absorption path.
func (s *ImageStore) Corrupt(id string, data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if record, ok := s.records[id]; ok {
		record.data = data
		s.records[id] = record
	}
}
