// Package pending implements the best-effort journal of an in-progress
// backup: a record rewritten at most once per second under a
// deterministic path, used for post-mortem inspection and cleanup, never
// for automatic resume.
package pending

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/metadata"
	"gib/internal/objectstore"
)

// Journal tracks one in-progress backup's processed chunk list under a
// single exclusive guard, shared between the writer's fan-out goroutines
// appending hashes and the background ticker serializing snapshots.
type Journal struct {
	mu        sync.Mutex
	record    metadata.Pending
	processed []string
}

// New returns a Journal seeded with the fixed parameters of a backup run.
// ProcessedChunks starts empty.
func New(message string, compress bool, chunkSize uint64, concurrency uint32, ignorePatterns []string) *Journal {
	return &Journal{
		record: metadata.Pending{
			Message:        message,
			Compress:       compress,
			ChunkSize:      chunkSize,
			Concurrency:    concurrency,
			IgnorePatterns: ignorePatterns,
		},
	}
}

// Append records hash as processed. Safe for concurrent use.
func (j *Journal) Append(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed = append(j.processed, hash)
}

func (j *Journal) snapshot() metadata.Pending {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := j.record
	rec.ProcessedChunks = append([]string(nil), j.processed...)
	return rec
}

// Persist writes a point-in-time snapshot of the journal to its
// deterministic path under key, for the backup identified by hash.
func (j *Journal) Persist(ctx context.Context, store objectstore.Store, key, hash, password string, level codec.Level) error {
	data, err := metadata.MarshalPending(j.snapshot())
	if err != nil {
		return fmt.Errorf("pending: marshal: %w", err)
	}
	blob, err := codec.Encode(data, level, password)
	if err != nil {
		return fmt.Errorf("pending: encode: %w", err)
	}
	if err := store.Write(ctx, layout.PendingPath(key, hash), blob); err != nil {
		return fmt.Errorf("pending: write: %w", err)
	}
	return nil
}

// Run starts a background goroutine that persists a snapshot every
// interval until the returned stop function is called or ctx is done.
// Persist errors are reported through onError (which may be nil); the
// ticker keeps running regardless, since the journal is best-effort.
func (j *Journal) Run(ctx context.Context, store objectstore.Store, key, hash, password string, level codec.Level, interval time.Duration, onError func(error)) (stop func()) {
	tickerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
				if err := j.Persist(ctx, store, key, hash, password, level); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Delete removes the journal for the backup identified by hash.
func Delete(ctx context.Context, store objectstore.Store, key, hash string) error {
	if err := store.Delete(ctx, layout.PendingPath(key, hash)); err != nil {
		return fmt.Errorf("pending: delete: %w", err)
	}
	return nil
}

// Entry pairs a pending journal with the backup hash its path encodes.
type Entry struct {
	Hash    string
	Pending metadata.Pending
}

// List returns every pending journal currently stored under key.
func List(ctx context.Context, store objectstore.Store, key, password string) ([]Entry, error) {
	paths, err := store.List(ctx, layout.IndexesDir(key))
	if err != nil {
		return nil, fmt.Errorf("pending: list: %w", err)
	}
	var entries []Entry
	for _, p := range paths {
		if !layout.IsPendingPath(p) {
			continue
		}
		idx := strings.LastIndex(p, "pending_")
		hash := p[idx+len("pending_"):]

		blob, err := store.Read(ctx, p)
		if err != nil {
			if err == objectstore.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("pending: read %s: %w", p, err)
		}
		res, err := codec.Decode(blob, password)
		if err != nil {
			return nil, fmt.Errorf("pending: decode %s: %w", p, err)
		}
		rec, err := metadata.UnmarshalPending(res.Plain)
		if err != nil {
			return nil, fmt.Errorf("pending: unmarshal %s: %w", p, err)
		}
		entries = append(entries, Entry{Hash: hash, Pending: rec})
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
