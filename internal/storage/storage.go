package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob_not_found")

// BlobStore persists packaged artifacts. Keys are opaque
// slash-separated paths owned by the download service.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}
