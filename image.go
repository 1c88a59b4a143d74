package zipcard

import (
	"context"
	"errors"
	"strings"
)

// MaxImageBytes is the hard upload limit. Exactly this size is accepted,
// one byte more is not.
const MaxImageBytes = 10 << 20 // 10 MiB

const (
	MimeJpeg = "image/jpeg"
	MimePng  = "image/png"
)

var (
	ErrImageNotFound   = errors.New("image not found")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrImageTooLarge   = errors.New("image too large")
	ErrCorruptPayload  = errors.New("corrupt image payload")
)

// ErrStorageUnavailable marks backend/connectivity failures, as opposed to
// validation failures and corrupt rows. Stores wrap the driver error in a
// StorageError so errors.Is(err, ErrStorageUnavailable) works at call sites.
var ErrStorageUnavailable = errors.New("storage unavailable")

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// StoredImage is a persisted binary image referenced by an opaque id.
// Re-uploading never updates a record in place; a new record is created and
// the old id is orphaned until swept manually.
type StoredImage struct {
	Id             string
	OwnerProfileId UserId
	Bytes          []byte
	MimeType       string
	FileName       string
	ByteSize       int
}

// ImageUpload is the validated input to ImageStore.Upload.
type ImageUpload struct {
	OwnerProfileId UserId
	FileName       string
	MimeType       string
	Bytes          []byte
}

type ImageStore interface {
	// Upload validates, encodes and persists a new image record and returns
	// its id. Fails with ErrUnsupportedType or ErrImageTooLarge.
	Upload(ctx context.Context, upload ImageUpload) (string, error)

	// Fetch returns the decoded image or nil when the id references nothing
	// or the stored payload is corrupt. Callers must treat both the same way
	// and fall back to a default resource. Only transport failures error.
	Fetch(ctx context.Context, id string) (*StoredImage, error)

	// Remove deletes by id. Idempotent; reports whether a row was deleted.
	Remove(ctx context.Context, id string) (bool, error)

	// SweepCorrupted deletes every record whose payload fails the corruption
	// heuristics applied by Fetch and returns how many were removed.
	// Explicit maintenance only, never triggered by reads.
	SweepCorrupted(ctx context.Context) (int, error)
}

// ValidateImageUpload applies the upload acceptance rules: JPEG or PNG only,
// at most MaxImageBytes.
func ValidateImageUpload(mimeType string, size int) error {
	switch normalizeMime(mimeType) {
	case MimeJpeg, MimePng:
	default:
		return ErrUnsupportedType
	}
	if size > MaxImageBytes {
		return ErrImageTooLarge
	}
	return nil
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "image/jpg" {
		return MimeJpeg
	}
	return mimeType
}
