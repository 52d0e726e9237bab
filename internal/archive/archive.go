package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/fitpick/apiserver/config"
)

// ObjectStore keeps raw provider responses for later inspection.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// New constructs the configured object-store backend. An empty backend
// name disables archival and returns a nil ObjectStore.
func New(ctx context.Context, cfg config.ArchiveConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		return NewMinioStore(cfg.Minio)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
