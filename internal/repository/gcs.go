package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// GCSBlobs fetches gs://bucket/object attachments.
type GCSBlobs struct {
	client   *storage.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewGCSBlobs uses application default credentials.
func NewGCSBlobs(ctx context.Context, maxBytes int64, logger *slog.Logger) (*GCSBlobs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBlobs{client: client, maxBytes: maxBytes, logger: logger}, nil
}

func (g *GCSBlobs) Close() error {
	return g.client.Close()
}

// ParseGSURI splits gs://bucket/path/to/object.
func ParseGSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: not a gs:// uri: %q", common.ErrInvalidInput, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: gs uri needs bucket and object: %q", common.ErrInvalidInput, uri)
	}
	return bucket, object, nil
}

func (g *GCSBlobs) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGSURI(uri)
	if err != nil {
		return nil, &common.AttachmentFetchError{ContentKey: uri, Reason: "bad uri", Cause: err}
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, &common.AttachmentFetchError{ContentKey: uri, Reason: "object not found", Cause: err}
	}
	if err != nil {
		return nil, &common.AttachmentFetchError{ContentKey: uri, Reason: "open reader", Cause: err}
	}
	defer r.Close()

	var src io.Reader = r
	if g.maxBytes > 0 {
		if r.Attrs.Size > g.maxBytes {
			return nil, &common.AttachmentFetchError{ContentKey: uri, Reason: fmt.Sprintf("object is %d bytes, limit %d", r.Attrs.Size, g.maxBytes)}
		}
		src = io.LimitReader(r, g.maxBytes+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, &common.AttachmentFetchError{ContentKey: uri, Reason: "read object", Cause: err}
	}
	g.logger.Debug("repository.gcs.fetched", "bucket", bucket, "object", object, "bytes", len(b))
	return b, nil
}
