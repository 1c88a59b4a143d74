package imgcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zipcard/zipcard"
)

func fakePng(payloadLen int) []byte {
	b := make([]byte, payloadLen)
	rand.New(rand.NewSource(42)).Read(b)
	return append([]byte{0x89, 0x50, 0x4E, 0x47}, b...)
}

func fakeJpeg(payloadLen int) []byte {
	b := make([]byte, payloadLen)
	rand.New(rand.NewSource(7)).Read(b)
	return append([]byte{0xFF, 0xD8, 0xFF}, b...)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, image := range [][]byte{fakePng(100), fakeJpeg(100), fakePng(0)} {
		encoded := EncodeForStorage(image)
		decoded, err := DecodeFromStorage(encoded)
		if !assert.NoError(err) {
			continue
		}
		assert.Equal(image, decoded)
	}
}

func TestEncodeCopies(t *testing.T) {
	image := fakePng(16)
	encoded := EncodeForStorage(image)
	image[10] ^= 0xFF
	assert.NotEqual(t, image, encoded)
}

func TestDecodeLegacyShapes(t *testing.T) {
	image := fakeJpeg(64)

	jsonObject := func(b []byte) []byte {
		var sb strings.Builder
		sb.WriteByte('{')
		for i, v := range b {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, `"%d":%d`, i, v)
		}
		sb.WriteByte('}')
		return []byte(sb.String())
	}
	jsonArray := func(b []byte) []byte {
		var sb strings.Builder
		sb.WriteByte('[')
		for i, v := range b {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%d", v)
		}
		sb.WriteByte(']')
		return []byte(sb.String())
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"raw", image},
		{"json object", jsonObject(image)},
		{"json array", jsonArray(image)},
		{"base64", []byte(base64.StdEncoding.EncodeToString(image))},
		{"base64 data url", []byte("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image))},
		{"hex", []byte(hex.EncodeToString(image))},
		{"hex pg prefix", []byte(`\x` + hex.EncodeToString(image))},
		{"escaped literal", escapedLiteral(image)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			decoded, err := DecodeFromStorage(c.raw)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, image, decoded)
		})
	}
}

func escapedLiteral(b []byte) []byte {
	var sb strings.Builder
	for _, v := range b {
		fmt.Fprintf(&sb, `\x%02x`, v)
	}
	return []byte(sb.String())
}

func TestDecodeChunkedHexLargePayload(t *testing.T) {
	// several hex chunks worth of source text
	image := fakePng(3 * hexChunkSize)
	decoded, err := DecodeFromStorage([]byte(hex.EncodeToString(image)))
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, image, decoded)
}

func TestDecodeCorruptPayloads(t *testing.T) {
	corrupt := [][]byte{
		nil,
		{},
		[]byte("not an image at all"),
		[]byte(`{"a":1,"b":2}`),
		[]byte(`{"0":255,"2":216}`), // sparse keys
		[]byte(`[1,2,300]`),
		[]byte("zzzz not base64 !!"),
		[]byte("abcdef"),       // valid hex, no magic
		[]byte(`\xde\xad\xbe`), // escapes, no magic
		fakePng(64)[:3],        // truncated below any magic
		{0x00, 0x01, 0x02, 0x03},
	}
	for _, raw := range corrupt {
		_, err := DecodeFromStorage(raw)
		assert.True(t, errors.Is(err, zipcard.ErrCorruptPayload), "payload %q", raw)
	}
}

func TestDecodeRawWinsOverTextShapes(t *testing.T) {
	// raw binary that also happens to be plausible text must be taken as-is
	image := fakeJpeg(40)
	decoded, err := DecodeFromStorage(image)
	assert.NoError(t, err)
	assert.True(t, bytes.Equal(image, decoded))
	assert.Equal(t, "raw", decodedName(image))
}

func TestDetectMime(t *testing.T) {
	assert.Equal(t, zipcard.MimePng, DetectMime(fakePng(10)))
	assert.Equal(t, zipcard.MimeJpeg, DetectMime(fakeJpeg(10)))
	assert.Equal(t, "", DetectMime([]byte("ordinary text")))
}

func TestPlausible(t *testing.T) {
	assert.True(t, Plausible(fakePng(MinPlausibleBytes)))
	assert.False(t, Plausible(fakePng(2)))
	assert.False(t, Plausible(make([]byte, 100)))
}

func TestToDataURL(t *testing.T) {
	assert := assert.New(t)

	image := fakePng(48)
	url, err := ToDataURL(image, zipcard.MimePng)
	if assert.NoError(err) {
		assert.True(strings.HasPrefix(url, "data:image/png;base64,"))
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
		assert.NoError(err)
		assert.Equal(image, decoded)
	}

	// mime inferred from magic prefix when omitted
	url, err = ToDataURL(fakeJpeg(48), "")
	if assert.NoError(err) {
		assert.True(strings.HasPrefix(url, "data:image/jpeg;base64,"))
	}

	_, err = ToDataURL(nil, zipcard.MimePng)
	assert.Error(err)
}
