package evidence_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/evidence"
	"github.com/warp/barstock/inventory"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepare_SmallPhotoIsKept(t *testing.T) {
	data := pngOf(t, 40, 30)

	photo, err := evidence.Prepare(data, "", evidence.MaxDimension)
	require.NoError(t, err)

	// THEN: sniffed as PNG, untouched, content-addressed
	assert.Equal(t, "image/png", photo.ContentType)
	assert.Equal(t, data, photo.Data)
	assert.True(t, strings.HasSuffix(photo.Name, ".png"))
	assert.Len(t, photo.Name, 64+len(".png"))

	again, err := evidence.Prepare(data, "image/png", evidence.MaxDimension)
	require.NoError(t, err)
	assert.Equal(t, photo.Name, again.Name)
}

func TestPrepare_LargePhotoIsDownscaled(t *testing.T) {
	photo, err := evidence.Prepare(pngOf(t, 400, 100), "image/png", 200)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", photo.ContentType)
	assert.True(t, strings.HasSuffix(photo.Name, ".jpg"))

	img, err := imaging.Decode(bytes.NewReader(photo.Data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestPrepare_RejectsNonImages(t *testing.T) {
	_, err := evidence.Prepare([]byte("%PDF-1.4 not a photo"), "", evidence.MaxDimension)
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = evidence.Prepare(nil, "image/png", evidence.MaxDimension)
	assert.ErrorIs(t, err, inventory.ErrValidation)

	// Declared PNG, but the bytes do not decode
	_, err = evidence.Prepare([]byte("garbage"), "image/png", evidence.MaxDimension)
	var ve *inventory.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "photo", ve.Field)
}

func TestMemory_Upload(t *testing.T) {
	m := evidence.NewMemory()
	url, err := m.Upload(context.Background(), pngOf(t, 10, 10), "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "memory://evidence/"))

	photo, ok := m.Get(strings.TrimPrefix(url, "memory://evidence/"))
	require.True(t, ok)
	assert.Equal(t, "image/png", photo.ContentType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Upload(ctx, pngOf(t, 10, 10), "image/png")
	assert.ErrorIs(t, err, inventory.ErrUpstream)
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://storage.googleapis.com/barstock-proof/evidence/ab%20c.jpg",
		evidence.ObjectURL("barstock-proof", "evidence/ab c.jpg"))
}
