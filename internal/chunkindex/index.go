// Package chunkindex implements the repository's in-memory
// hash-to-refcount mapping and its whole-blob persistence through the
// codec and object store.
package chunkindex

import (
	"context"
	"fmt"
	"sync"

	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/metadata"
	"gib/internal/objectstore"
)

// Index is the chunk index: a guarded hash->refcount map. All mutating
// methods take the single exclusive lock the design calls for; critical
// sections are kept to lookup-then-bump.
type Index struct {
	mu      sync.Mutex
	entries map[string]uint32
}

// New returns an empty Index.
func New() *Index {
	return &Index{entries: map[string]uint32{}}
}

// LoadInfo reports read-time observations alongside the loaded Index, so
// a backup writer configured with a password can tell a genuine
// plaintext-upgrade (an existing index read back unencrypted) apart from
// simply finding no prior index at all.
type LoadInfo struct {
	Existed      bool
	WasEncrypted bool
}

// Load reads and decodes the chunk index blob for key from store. A
// missing or empty blob yields an empty index, not an error.
func Load(ctx context.Context, store objectstore.Store, key, password string) (*Index, LoadInfo, error) {
	blob, err := store.Read(ctx, layout.ChunkIndexPath(key))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return New(), LoadInfo{}, nil
		}
		return nil, LoadInfo{}, fmt.Errorf("chunkindex: read: %w", err)
	}
	res, err := codec.Decode(blob, password)
	if err != nil {
		return nil, LoadInfo{}, fmt.Errorf("chunkindex: decode: %w", err)
	}
	entries, err := metadata.UnmarshalChunkIndex(res.Plain)
	if err != nil {
		return nil, LoadInfo{}, fmt.Errorf("chunkindex: unmarshal: %w", err)
	}
	return &Index{entries: entries}, LoadInfo{Existed: true, WasEncrypted: res.WasEncrypted}, nil
}

// Save serializes and writes the entire index back to store, always
// through the codec (a whole-blob rewrite, never a partial update).
func (idx *Index) Save(ctx context.Context, store objectstore.Store, key, password string, level codec.Level) error {
	idx.mu.Lock()
	snapshot := make(map[string]uint32, len(idx.entries))
	for h, rc := range idx.entries {
		snapshot[h] = rc
	}
	idx.mu.Unlock()

	data, err := metadata.MarshalChunkIndex(snapshot)
	if err != nil {
		return fmt.Errorf("chunkindex: marshal: %w", err)
	}
	blob, err := codec.Encode(data, level, password)
	if err != nil {
		return fmt.Errorf("chunkindex: encode: %w", err)
	}
	if err := store.Write(ctx, layout.ChunkIndexPath(key), blob); err != nil {
		return fmt.Errorf("chunkindex: write: %w", err)
	}
	return nil
}

// Increment bumps hash's refcount, inserting a fresh entry at 0 first if
// absent. It reports whether the post-increment value is greater than 1
// (a dedup hit).
func (idx *Index) Increment(hash string) (dedupHit bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[hash]++
	return idx.entries[hash] > 1
}

// Decrement lowers hash's refcount by one, only if it is currently
// greater than zero. It reports whether the entry was removed because
// the refcount reached zero.
func (idx *Index) Decrement(hash string) (removed bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	rc, ok := idx.entries[hash]
	if !ok || rc == 0 {
		return false
	}
	rc--
	if rc == 0 {
		delete(idx.entries, hash)
		return true
	}
	idx.entries[hash] = rc
	return false
}

// Has reports whether hash is a key in the index.
func (idx *Index) Has(hash string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.entries[hash]
	return ok
}

// Refcount returns hash's current refcount, or 0 if absent.
func (idx *Index) Refcount(hash string) uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.entries[hash]
}

// Len returns the number of distinct chunk hashes currently tracked.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}
