package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicProfileURL(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("https://zipcard.app/u/makin", PublicProfileURL("https://zipcard.app", "makin"))
	// trailing slash on origin must not double up
	assert.Equal("https://zipcard.app/u/makin", PublicProfileURL("https://zipcard.app/", "makin"))
	// usernames round-trip through url encoding
	assert.Equal("https://zipcard.app/u/j%C3%B3zef%20k", PublicProfileURL("https://zipcard.app", "józef k"))
}

func TestSharePNG(t *testing.T) {
	assert := assert.New(t)

	data, err := SharePNG("https://zipcard.app", "makin", Options{Size: 256})
	if !assert.NoError(err) {
		return
	}
	assert.True(bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}))

	img, err := png.Decode(bytes.NewReader(data))
	if !assert.NoError(err) {
		return
	}
	assert.Equal(256, img.Bounds().Dx())
	assert.Equal(256, img.Bounds().Dy())
}

func TestSharePNGEmptyUsername(t *testing.T) {
	_, err := SharePNG("https://zipcard.app", "", Options{})
	assert.Error(t, err)
}
