// Package remove implements backup deletion (C7): decrements refcounts
// for a backup's chunks, removes chunks reaching zero, rewrites the
// chunk index and summaries, and deletes the backup manifest blob.
package remove

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"gib/internal/backup"
	"gib/internal/chunkindex"
	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/logging"
	"gib/internal/metadata"
	"gib/internal/objectstore"
	"gib/internal/summary"
)

// ErrBackupNotFound is returned when Options.BackupSelector does not
// resolve to any summary entry.
var ErrBackupNotFound = errors.New("remove: no backup matches selector")

// Options configures a single delete run.
type Options struct {
	Key            string
	Store          objectstore.Store
	Password       string
	BackupSelector string
	Compress       codec.Level
	Concurrency    int64
	Logger         *slog.Logger
}

// Result reports the outcome of a successful delete.
type Result struct {
	Hash            string
	ChunksRemoved   int
	ChunkDeleteErrs int
}

// Run resolves Options.BackupSelector and deletes the matching backup.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.Default(opts.Logger).With("component", "delete")

	summaries, err := summary.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("remove: load summaries: %w", err)
	}
	match, ok := summary.Resolve(summaries, opts.BackupSelector)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, opts.BackupSelector)
	}

	blob, err := opts.Store.Read(ctx, layout.BackupPath(opts.Key, match.Hash))
	if err != nil {
		return nil, fmt.Errorf("remove: read manifest: %w", err)
	}
	decRes, err := codec.Decode(blob, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("remove: decode manifest: %w", err)
	}
	b, err := metadata.UnmarshalBackup(decRes.Plain)
	if err != nil {
		return nil, fmt.Errorf("remove: unmarshal manifest: %w", err)
	}

	idx, _, err := chunkindex.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("remove: load chunk index: %w", err)
	}

	var toDelete []string
	for _, obj := range b.Tree {
		for _, h := range obj.Chunks {
			if removed := idx.Decrement(h); removed {
				toDelete = append(toDelete, h)
			}
		}
	}

	summaries = summary.Remove(summaries, match.Hash)

	if err := idx.Save(ctx, opts.Store, opts.Key, opts.Password, opts.Compress); err != nil {
		return nil, fmt.Errorf("remove: persist chunk index: %w", err)
	}
	if err := summary.Save(ctx, opts.Store, opts.Key, opts.Password, opts.Compress, summaries); err != nil {
		return nil, fmt.Errorf("remove: persist summaries: %w", err)
	}
	if err := opts.Store.Delete(ctx, layout.BackupPath(opts.Key, match.Hash)); err != nil {
		return nil, fmt.Errorf("remove: delete manifest: %w", err)
	}

	maxConcurrent := opts.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = backup.DefaultMaxConcurrent
	}
	deleteErrs := deleteChunks(ctx, opts.Store, opts.Key, toDelete, maxConcurrent)
	for _, err := range deleteErrs {
		logger.Warn("failed to delete orphaned chunk", "error", err)
	}

	logger.Info("backup deleted", "hash", match.Hash, "chunks_removed", len(toDelete))

	return &Result{
		Hash:            match.Hash,
		ChunksRemoved:   len(toDelete),
		ChunkDeleteErrs: len(deleteErrs),
	}, nil
}

func deleteChunks(ctx context.Context, store objectstore.Store, key string, hashes []string, maxConcurrent int64) []error {
	sem := semaphore.NewWeighted(maxConcurrent)
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, h := range hashes {
		h := h
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := store.Delete(ctx, layout.ChunkPath(key, h)); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("delete chunk %s: %w", h, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
