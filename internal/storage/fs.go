package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs on the local filesystem, one file per key.
// Suitable for single-node deployments and development.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) string {
	// Keys are service-generated, but keep traversal out anyway.
	clean := filepath.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func (s *FSStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Rename makes the blob visible atomically; readers never see a
	// half-written artifact.
	return os.Rename(tmp.Name(), target)
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
