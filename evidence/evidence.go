/*
Package evidence stores the photographic proof attached to movements and
shift closures.

PURPOSE:
  Bartenders photograph the scale (or the empty bottle) before a weight
  change, a retirement or a closure is accepted. The photo is uploaded
  first; the returned URL is what the ledger records. No URL, no mutation.

OBJECT NAMES:
  Content-addressed: sha256 of the stored bytes plus an extension, so a
  retried upload of the same photo yields the same URL.

IMAGE HANDLING:
  - Only JPEG and PNG are accepted.
  - Photos wider or taller than MaxDimension are down-scaled (Lanczos)
    and re-encoded as JPEG before upload.

IMPLEMENTATIONS:
  GCS    - Google Cloud Storage bucket (production)
  Memory - in-process map (development and tests)

SEE ALSO:
  - inventory/store.go: EvidenceStore interface
  - api/handlers.go: POST /api/evidence
*/
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/warp/barstock/inventory"
)

// MaxDimension is the longest edge, in pixels, kept for evidence photos.
const MaxDimension = 1600

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Photo is an evidence image ready for upload.
type Photo struct {
	Data        []byte
	ContentType string
	Name        string
}

// Prepare validates the image, down-scales it when needed and derives its
// content-addressed object name. An empty contentType is sniffed.
func Prepare(data []byte, contentType string, maxDim int) (*Photo, error) {
	if len(data) == 0 {
		return nil, &inventory.ValidationError{Field: "photo", Message: "photo is empty"}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return nil, &inventory.ValidationError{Field: "photo", Message: fmt.Sprintf("unsupported file type %s", contentType)}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &inventory.ValidationError{Field: "photo", Message: "photo is not a readable image"}
	}

	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			return nil, fmt.Errorf("encode resized photo: %w", err)
		}
		data = buf.Bytes()
		contentType = "image/jpeg"
	}

	sum := sha256.Sum256(data)
	return &Photo{
		Data:        data,
		ContentType: contentType,
		Name:        hex.EncodeToString(sum[:]) + allowedContentTypes[contentType],
	}, nil
}

// =============================================================================
// MEMORY
// =============================================================================

// Memory keeps uploads in a map. URLs use the memory:// scheme.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*Photo
	maxDim  int
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Photo), maxDim: MaxDimension}
}

func (m *Memory) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &inventory.UpstreamError{Op: "upload evidence", Err: err}
	}
	photo, err := Prepare(data, contentType, m.maxDim)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.objects[photo.Name] = photo
	m.mu.Unlock()
	return "memory://evidence/" + photo.Name, nil
}

// Get returns a stored photo by object name.
func (m *Memory) Get(name string) (*Photo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.objects[name]
	return p, ok
}

var _ inventory.EvidenceStore = (*Memory)(nil)
