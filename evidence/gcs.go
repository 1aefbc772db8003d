package evidence

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/inventory"
	"google.golang.org/api/option"
)

// GCS uploads evidence photos to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	maxDim int
	log    logrus.FieldLogger
}

// GCSOption configures a GCS store.
type GCSOption func(*GCS)

// WithPrefix puts objects under a folder, e.g. "evidence/".
func WithPrefix(prefix string) GCSOption {
	return func(g *GCS) { g.prefix = prefix }
}

func WithMaxDimension(px int) GCSOption {
	return func(g *GCS) { g.maxDim = px }
}

func WithLogger(log logrus.FieldLogger) GCSOption {
	return func(g *GCS) { g.log = log }
}

// NewGCS creates a client for bucket. credentialsJSON may be empty, in
// which case Application Default Credentials are used.
func NewGCS(ctx context.Context, bucket, credentialsJSON string, opts ...GCSOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required")
	}

	var clientOpts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	g := &GCS{client: client, bucket: bucket, prefix: "evidence/", maxDim: MaxDimension, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// Upload stores the photo and returns its public URL.
func (g *GCS) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	photo, err := Prepare(data, contentType, g.maxDim)
	if err != nil {
		return "", err
	}

	name := g.prefix + photo.Name
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = photo.ContentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := w.Write(photo.Data); err != nil {
		w.Close()
		return "", g.fail(name, err)
	}
	if err := w.Close(); err != nil {
		return "", g.fail(name, err)
	}

	g.log.WithFields(logrus.Fields{"bucket": g.bucket, "object": name, "bytes": len(photo.Data)}).Debug("evidence uploaded")
	return ObjectURL(g.bucket, name), nil
}

func (g *GCS) fail(name string, err error) error {
	g.log.WithError(err).WithFields(logrus.Fields{"bucket": g.bucket, "object": name}).Error("evidence upload failed")
	return &inventory.UpstreamError{Op: "upload evidence", Err: err}
}

// ObjectURL is the public HTTPS URL of an object.
func ObjectURL(bucket, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: name}).EscapedPath()
}

var _ inventory.EvidenceStore = (*GCS)(nil)
