package persistent

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/zipcard/zipcard"
	"github.com/zipcard/zipcard/imgcodec"
)

type Image struct {
	bun.BaseModel `bun:"table:image"`

	Id             string `bun:",pk"`
	OwnerProfileId int64  `bun:",notnull"`
	Data           []byte `bun:",notnull"`
	MimeType       string `bun:",notnull"`
	FileName       string
	ByteSize       int       `bun:",notnull"`
	CreatedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type ImageStore struct {
	DB *bun.DB
}

var _ zipcard.ImageStore = (*ImageStore)(nil)

func (s *ImageStore) Upload(ctx context.Context, upload zipcard.ImageUpload) (string, error) {
	if err := zipcard.ValidateImageUpload(upload.MimeType, len(upload.Bytes)); err != nil {
		return "", err
	}

	image := &Image{
		Id:             uuid.New().String(),
		OwnerProfileId: int64(upload.OwnerProfileId),
		Data:           imgcodec.EncodeForStorage(upload.Bytes),
		MimeType:       upload.MimeType,
		FileName:       upload.FileName,
		ByteSize:       len(upload.Bytes),
	}
	_, err := s.DB.NewInsert().
		Model(image).
		Exec(ctx)
	if err != nil {
		return "", &zipcard.StorageError{Op: "insert image", Err: err}
	}
	return image.Id, nil
}

// Fetch returns nil for a missing row and for a row whose payload fails the
// ordered-fallback decode; both degrade to the caller's fallback image.
func (s *ImageStore) Fetch(ctx context.Context, id string) (*zipcard.StoredImage, error) {
	image := new(Image)
	err := s.DB.NewSelect().
		Model(image).
		Where(`id=?`, id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &zipcard.StorageError{Op: "select image", Err: err}
	}

	decoded, err := imgcodec.DecodeFromStorage(image.Data)
	if err != nil || !imgcodec.Plausible(decoded) {
		// corrupt row; reads treat it as absent
		return nil, nil
	}
	return &zipcard.StoredImage{
		Id:             image.Id,
		OwnerProfileId: zipcard.UserId(image.OwnerProfileId),
		Bytes:          decoded,
		MimeType:       image.MimeType,
		FileName:       image.FileName,
		ByteSize:       len(decoded),
	}, nil
}

func (s *ImageStore) Remove(ctx context.Context, id string) (bool, error) {
	result, err := s.DB.NewDelete().
		Model((*Image)(nil)).
		Where(`id=?`, id).
		Exec(ctx)
	if err != nil {
		return false, &zipcard.StorageError{Op: "delete image", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, &zipcard.StorageError{Op: "delete image rows affected", Err: err}
	}
	return affected > 0, nil
}

// SweepCorrupted removes every row whose payload fails the same heuristics
// Fetch applies: no decode strategy yields a recognized magic prefix, or the
// decoded payload is implausibly small.
func (s *ImageStore) SweepCorrupted(ctx context.Context) (int, error) {
	var images []Image
	err := s.DB.NewSelect().
		Model(&images).
		Scan(ctx)
	if err != nil {
		return 0, &zipcard.StorageError{Op: "select images", Err: err}
	}

	corruptIds := make([]string, 0)
	for _, image := range images {
		decoded, err := imgcodec.DecodeFromStorage(image.Data)
		if err != nil || !imgcodec.Plausible(decoded) {
			corruptIds = append(corruptIds, image.Id)
		}
	}
	if len(corruptIds) == 0 {
		return 0, nil
	}

	result, err := s.DB.NewDelete().
		Model((*Image)(nil)).
		Where(`id IN (?)`, bun.In(corruptIds)).
		Exec(ctx)
	if err != nil {
		return 0, &zipcard.StorageError{Op: "delete corrupt images", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &zipcard.StorageError{Op: "delete corrupt images rows affected", Err: err}
	}
	return int(affected), nil
}
