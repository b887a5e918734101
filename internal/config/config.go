// Package config implements the author-identity store: a single
// user-wide MessagePack record, `{author: string}`, whose author value a
// caller passes to the backup writer as backup.Options.Author; the
// writer itself does not read this store. Store is the interface;
// FileStore is its one concrete, file-backed implementation.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Config is the persisted author-identity record.
type Config struct {
	Author string `msgpack:"author"`
}

// Store loads and saves a Config. Load returns nil, nil when no config
// has been written yet — callers treat a missing config as "no author
// configured", not an error.
type Store interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg Config) error
}

// FileStore is a Store backed by a single MessagePack file, following
// the atomic temp-file-then-rename write pattern used throughout this
// repository's on-store writes.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore backed by path, typically
// "<home>/.gib/config.msgpack".
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns "<home>/.gib/config.msgpack" for the current user.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gib", "config.msgpack"), nil
}

// Load reads and decodes the config file. A missing file yields
// (nil, nil).
func (s *FileStore) Load(_ context.Context) (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", s.path, err)
	}
	var cfg Config
	if err := msgpack.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", s.path, err)
	}
	return &cfg, nil
}

// Save atomically writes cfg to the config file, creating the parent
// directory if needed.
func (s *FileStore) Save(_ context.Context, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("config: create parent for %s: %w", s.path, err)
	}
	data, err := msgpack.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename into place %s: %w", path, err)
	}
	return nil
}
