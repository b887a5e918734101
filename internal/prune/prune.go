// Package prune implements orphan-chunk and stray-pending-journal
// cleanup (C8): anything stored under a repository's chunk tree whose
// hash is not a key in the chunk index, plus any pending_* journal, is
// eligible for removal.
package prune

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"gib/internal/backup"
	"gib/internal/chunkindex"
	"gib/internal/layout"
	"gib/internal/logging"
	"gib/internal/objectstore"
)

// Options configures a single prune run.
type Options struct {
	Key         string
	Store       objectstore.Store
	Password    string
	Concurrency int64
	Logger      *slog.Logger
}

// Result reports what prune found and removed.
type Result struct {
	Candidates []string
	Removed    int
	Failed     int
}

// Plan lists every path prune would remove, without deleting anything.
// Callers that require confirmation before deleting call Plan first,
// then Run once the caller is satisfied; Run plans again before deleting.
func Plan(ctx context.Context, opts Options) ([]string, error) {
	idx, _, err := chunkindex.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("prune: load chunk index: %w", err)
	}

	chunkPaths, err := opts.Store.List(ctx, layout.ChunksDir(opts.Key))
	if err != nil {
		return nil, fmt.Errorf("prune: list chunks: %w", err)
	}

	var candidates []string
	for _, p := range chunkPaths {
		h, ok := layout.ChunkHashFromPath(p)
		if !ok {
			continue
		}
		if !idx.Has(h) {
			candidates = append(candidates, p)
		}
	}

	indexPaths, err := opts.Store.List(ctx, layout.IndexesDir(opts.Key))
	if err != nil {
		return nil, fmt.Errorf("prune: list indexes: %w", err)
	}
	for _, p := range indexPaths {
		if layout.IsPendingPath(p) {
			candidates = append(candidates, p)
		}
	}

	return candidates, nil
}

// Run plans and then deletes every candidate path, bounded by a
// semaphore. Individual delete failures are accumulated but do not
// abort the others.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.Default(opts.Logger).With("component", "prune")

	candidates, err := Plan(ctx, opts)
	if err != nil {
		return nil, err
	}

	maxConcurrent := opts.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = backup.DefaultMaxConcurrent
	}
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu      sync.Mutex
		removed int
		failed  int
		wg      sync.WaitGroup
	)
	for _, p := range candidates {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := opts.Store.Delete(ctx, p); err != nil {
				logger.Warn("failed to delete prune candidate", "path", p, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			removed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	logger.Info("prune complete", "candidates", len(candidates), "removed", removed, "failed", failed)

	return &Result{Candidates: candidates, Removed: removed, Failed: failed}, nil
}
