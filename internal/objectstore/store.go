// Package objectstore defines the byte-blob storage capability the
// repository engine is built on: read, write, list and delete of opaque
// blobs keyed by a hierarchical, forward-slash-separated path. Four
// concrete back-ends are provided: a POSIX directory store, an
// S3-compatible object store, an Azure Blob Storage container, and a
// Google Cloud Storage bucket. The engine never branches on back-end
// kind; it only ever talks to the Store interface.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no blob exists at the given path.
var ErrNotFound = errors.New("objectstore: blob not found")

// Store is the storage capability the repository engine depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Read returns the bytes stored at path, or ErrNotFound if absent.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write stores data at path, creating any intermediate structure the
	// back-end needs (directories, buckets-prefixes) implicitly.
	Write(ctx context.Context, path string, data []byte) error

	// List returns every path stored under prefix. prefix is treated as a
	// directory: a trailing "/" is implied if absent. Listing a prefix
	// with no matching blobs returns an empty, non-nil slice and a nil
	// error — never ErrNotFound.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob at path. Deleting a path that does not
	// exist is not an error.
	Delete(ctx context.Context, path string) error
}
