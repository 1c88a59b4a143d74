// Package qr renders the share code for a public profile page.
package qr

import (
	"errors"
	"image/color"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered PNG edge length in pixels.
const DefaultSize = 512

type Options struct {
	// Size in pixels; DefaultSize when zero.
	Size int
	// NoBorder drops the quiet-zone margin around the code.
	NoBorder bool
	// Foreground and Background override the default black-on-white.
	Foreground color.Color
	Background color.Color
}

// PublicProfileURL builds the canonical share URL for a username:
// <origin>/u/<url-encoded-username>. Any user agent must be able to open it.
func PublicProfileURL(origin string, username string) string {
	return strings.TrimRight(origin, "/") + "/u/" + url.PathEscape(username)
}

// SharePNG encodes the public profile URL of username into a PNG QR code.
// Error correction is set to High so a centered logo overlay on the client
// does not break scanning.
func SharePNG(origin string, username string, opts Options) ([]byte, error) {
	if username == "" {
		return nil, errors.New("empty username")
	}

	code, err := qrcode.New(PublicProfileURL(origin, username), qrcode.High)
	if err != nil {
		return nil, err
	}
	if opts.Foreground != nil {
		code.ForegroundColor = opts.Foreground
	}
	if opts.Background != nil {
		code.BackgroundColor = opts.Background
	}
	code.DisableBorder = opts.NoBorder

	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	return code.PNG(size)
}
