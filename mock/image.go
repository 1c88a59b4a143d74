package mock

import (
	"context"

	"github.com/zipcard/zipcard"
)

type ImageService struct {
	UploadFn         func(ctx context.Context, upload zipcard.ImageUpload) (string, error)
	FetchFn          func(ctx context.Context, id string) (*zipcard.StoredImage, error)
	RemoveFn         func(ctx context.Context, id string) (bool, error)
	SweepCorruptedFn func(ctx context.Context) (int, error)
}

func (s *ImageService) Upload(ctx context.Context, upload zipcard.ImageUpload) (string, error) {
	return s.UploadFn(ctx, upload)
}

func (s *ImageService) Fetch(ctx context.Context, id string) (*zipcard.StoredImage, error) {
	return s.FetchFn(ctx, id)
}

func (s *ImageService) Remove(ctx context.Context, id string) (bool, error) {
	return s.RemoveFn(ctx, id)
}

func (s *ImageService) SweepCorrupted(ctx context.Context) (int, error) {
	return s.SweepCorruptedFn(ctx)
}
