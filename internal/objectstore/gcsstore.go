package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore is a Store backed by a Google Cloud Storage bucket. Blob paths
// map directly onto object names.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore wraps an already-authenticated client for the given bucket.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (s *GCSStore) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcsstore: read %s: %w", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcsstore: read body %s: %w", path, err)
	}
	return data, nil
}

func (s *GCSStore) Write(ctx context.Context, path string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("gcsstore: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcsstore: close %s: %w", path, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcsstore: list %s: %w", prefix, err)
		}
		out = append(out, attrs.Name)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *GCSStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(path).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("gcsstore: delete %s: %w", path, err)
	}
	return nil
}
