// Package storagedef implements named storage connection profiles.
// Each profile describes one objectstore back-end (local directory,
// S3-compatible, Azure Blob, or GCS) and is persisted as
// "<home>/.gib/storages/<name>.msgpack"; Build resolves a definition
// into a live objectstore.Store.
package storagedef

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/vmihailenco/msgpack/v5"

	"gib/internal/objectstore"
)

// Kind identifies which back-end a Definition describes.
type Kind uint8

const (
	// KindLocal is a POSIX directory back-end.
	KindLocal Kind = iota
	// KindS3 is an S3-compatible object-storage back-end.
	KindS3
	// KindAzureBlob is an Azure Blob Storage container back-end.
	KindAzureBlob
	// KindGCS is a Google Cloud Storage bucket back-end.
	KindGCS
)

// ErrInvalidName is returned when a storage name contains characters
// other than letters, digits, underscore, or hyphen.
var ErrInvalidName = errors.New("storagedef: name must contain only letters, digits, '_' or '-'")

// ErrNotFound is returned when a named definition does not exist.
var ErrNotFound = errors.New("storagedef: storage not found")

// Definition is a named connection profile for an objectstore.Store.
type Definition struct {
	Kind        Kind   `msgpack:"storage_type"`
	Path        string `msgpack:"path,omitempty"`
	Region      string `msgpack:"region,omitempty"`
	Bucket      string `msgpack:"bucket,omitempty"`
	AccessKey   string `msgpack:"access_key,omitempty"`
	SecretKey   string `msgpack:"secret_key,omitempty"`
	Endpoint    string `msgpack:"endpoint,omitempty"`
	AccountName string `msgpack:"account_name,omitempty"`
}

// Build resolves d into a live objectstore.Store.
func Build(ctx context.Context, d Definition) (objectstore.Store, error) {
	switch d.Kind {
	case KindLocal:
		return objectstore.NewDirStore(d.Path), nil
	case KindS3:
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:    d.Region,
			Bucket:    d.Bucket,
			AccessKey: d.AccessKey,
			SecretKey: d.SecretKey,
			Endpoint:  d.Endpoint,
		})
	case KindAzureBlob:
		return objectstore.NewAzureBlobStore(objectstore.AzureBlobConfig{
			AccountName: d.AccountName,
			AccountKey:  d.SecretKey,
			Container:   d.Bucket,
		})
	case KindGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storagedef: build gcs client: %w", err)
		}
		return objectstore.NewGCSStore(client, d.Bucket), nil
	default:
		return nil, fmt.Errorf("storagedef: unknown storage kind %d", d.Kind)
	}
}

// Store lists, loads, saves, and removes named storage definitions
// under a directory, one "<name>.msgpack" file per definition.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, typically
// "<home>/.gib/storages".
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns "<home>/.gib/storages" for the current user.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storagedef: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gib", "storages"), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".msgpack")
}

// Save persists def under name, creating the storages directory if
// needed. Returns ErrInvalidName if name contains disallowed characters.
func (s *Store) Save(_ context.Context, name string, def Definition) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("storagedef: create %s: %w", s.dir, err)
	}
	data, err := msgpack.Marshal(def)
	if err != nil {
		return fmt.Errorf("storagedef: encode %q: %w", name, err)
	}
	return writeAtomic(s.path(name), data)
}

// Load reads the definition named name.
func (s *Store) Load(_ context.Context, name string) (Definition, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return Definition{}, fmt.Errorf("storagedef: read %q: %w", name, err)
	}
	var def Definition
	if err := msgpack.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("storagedef: decode %q: %w", name, err)
	}
	return def, nil
}

// Remove deletes the definition named name. Removing a definition that
// does not exist is not an error.
func (s *Store) Remove(_ context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storagedef: remove %q: %w", name, err)
	}
	return nil
}

// List returns the names of every definition currently stored, sorted
// is not guaranteed; callers that need stable order should sort.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storagedef: list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".msgpack"); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storagedef: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storagedef: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storagedef: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storagedef: rename into place %s: %w", path, err)
	}
	return nil
}
