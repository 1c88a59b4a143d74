// Package resolver turns an optional stored-image id into the resource a
// card actually renders. Missing ids, deleted records, corrupt payloads and
// backend failures all degrade to the fallback resource; a card never shows
// a broken image and a reader never sees a storage error.
package resolver

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zipcard/zipcard"
	"github.com/zipcard/zipcard/imgcodec"
	"golang.org/x/sync/singleflight"
)

// Result is the resolved resource. Fallback reports whether the fallback
// URL was used instead of the stored image.
type Result struct {
	URL      string
	MimeType string
	Fallback bool
}

type Resolver struct {
	Images      zipcard.ImageStore
	FallbackURL string

	// redundant resolutions of the same id within one render pass share a
	// single fetch
	group singleflight.Group
}

// Resolve maps an optional image id to a renderable resource. An empty id
// resolves to the fallback immediately; otherwise the image is fetched,
// decoded and wrapped into a data URL. Resolve never returns an error.
func (r *Resolver) Resolve(ctx context.Context, id string) Result {
	if id == "" {
		return r.fallback()
	}

	value, err, _ := r.group.Do(id, func() (interface{}, error) {
		// coalesced callers share this one fetch; detach it from the first
		// caller's cancellation so an aborted request cannot fail the rest
		return r.Images.Fetch(context.Background(), id)
	})
	if err != nil {
		logrus.WithError(err).WithField("image_id", id).
			Warnln("Image fetch failed, using fallback.")
		return r.fallback()
	}

	image, _ := value.(*zipcard.StoredImage)
	if image == nil {
		// absent or corrupt; both resolve to the fallback by contract
		return r.fallback()
	}

	url, err := imgcodec.ToDataURL(image.Bytes, image.MimeType)
	if err != nil {
		logrus.WithError(err).WithField("image_id", id).
			Warnln("Image not renderable, using fallback.")
		return r.fallback()
	}
	return Result{URL: url, MimeType: image.MimeType}
}

// ResolveAll maps a photo-id list preserving order; dangling entries
// resolve to the fallback like everything else.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = r.Resolve(ctx, id)
	}
	return results
}

func (r *Resolver) fallback() Result {
	return Result{URL: r.FallbackURL, Fallback: true}
}
