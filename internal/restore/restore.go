// Package restore implements the backup reader (C6): loads a backup
// manifest, fetches and concatenates chunks into reconstructed files,
// and optionally prunes local files the manifest does not describe.
package restore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"gib/internal/backup"
	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/logging"
	"gib/internal/metadata"
	"gib/internal/objectstore"
	"gib/internal/permissions"
	"gib/internal/summary"
)

// ErrBackupNotFound is returned when Options.BackupSelector does not
// resolve to any summary entry.
var ErrBackupNotFound = errors.New("restore: no backup matches selector")

// Options configures a single restore run.
type Options struct {
	Key            string
	Store          objectstore.Store
	Password       string
	BackupSelector string
	TargetPath     string
	PruneLocal     bool
	// OnlySelector restricts restore to files whose manifest key equals
	// one of these paths or has it as a "/"-terminated prefix. A nil or
	// empty slice restores everything.
	OnlySelector []string
	Concurrency  int64
	Logger       *slog.Logger
}

// Result reports the outcome of a successful restore.
type Result struct {
	Hash         string
	Restored     int
	Skipped      int
	DeletedLocal int
}

// Run executes a complete restore of the resolved backup into
// opts.TargetPath.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.Default(opts.Logger).With("component", "restore")

	summaries, err := summary.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("restore: load summaries: %w", err)
	}
	match, ok := summary.Resolve(summaries, opts.BackupSelector)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, opts.BackupSelector)
	}

	blob, err := opts.Store.Read(ctx, layout.BackupPath(opts.Key, match.Hash))
	if err != nil {
		return nil, fmt.Errorf("restore: read manifest: %w", err)
	}
	res, err := codec.Decode(blob, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("restore: decode manifest: %w", err)
	}
	b, err := metadata.UnmarshalBackup(res.Plain)
	if err != nil {
		return nil, fmt.Errorf("restore: unmarshal manifest: %w", err)
	}

	selected := selectTree(b.Tree, opts.OnlySelector)

	maxConcurrent := opts.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = backup.DefaultMaxConcurrent
	}

	restored, skipped, err := restoreFiles(ctx, opts, selected, maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	deletedLocal := 0
	if opts.PruneLocal && len(opts.OnlySelector) == 0 {
		deletedLocal, err = pruneLocal(opts.TargetPath, b.Tree)
		if err != nil {
			logger.Warn("prune-local failed", "error", err)
		}
	}

	logger.Info("restore complete", "hash", match.Hash, "restored", restored, "skipped", skipped, "deleted_local", deletedLocal)

	return &Result{
		Hash:         b.Hash,
		Restored:     restored,
		Skipped:      skipped,
		DeletedLocal: deletedLocal,
	}, nil
}

func selectTree(tree map[string]metadata.BackupObject, only []string) map[string]metadata.BackupObject {
	if len(only) == 0 {
		return tree
	}
	out := make(map[string]metadata.BackupObject, len(tree))
	for relPath, obj := range tree {
		for _, sel := range only {
			sel = strings.TrimSuffix(sel, "/")
			if relPath == sel || strings.HasPrefix(relPath, sel+"/") {
				out[relPath] = obj
				break
			}
		}
	}
	return out
}

func restoreFiles(ctx context.Context, opts Options, tree map[string]metadata.BackupObject, maxConcurrent int64) (restored, skipped int, err error) {
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for relPath, obj := range tree {
		relPath, obj := relPath, obj
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", relPath, err))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			didRestore, restoreErr := restoreOneFile(ctx, opts, relPath, obj)
			mu.Lock()
			defer mu.Unlock()
			if restoreErr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", relPath, restoreErr))
				return
			}
			if didRestore {
				restored++
			} else {
				skipped++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return 0, 0, errors.Join(errs...)
	}
	return restored, skipped, nil
}

func restoreOneFile(ctx context.Context, opts Options, relPath string, obj metadata.BackupObject) (restored bool, err error) {
	localPath := filepath.Join(opts.TargetPath, filepath.FromSlash(relPath))

	if matchesOnDisk(localPath, obj.Hash) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, fmt.Errorf("create parent: %w", err)
	}
	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	for _, h := range obj.Chunks {
		blob, err := opts.Store.Read(ctx, layout.ChunkPath(opts.Key, h))
		if err != nil {
			return false, fmt.Errorf("read chunk %s: %w", h, err)
		}
		dec, err := codec.Decode(blob, opts.Password)
		if err != nil {
			return false, fmt.Errorf("decode chunk %s: %w", h, err)
		}
		if _, err := f.Write(dec.Plain); err != nil {
			return false, fmt.Errorf("write chunk %s: %w", h, err)
		}
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close: %w", err)
	}
	if err := permissions.Apply(localPath, obj.Permissions); err != nil {
		return false, fmt.Errorf("set permissions: %w", err)
	}
	return true, nil
}

func matchesOnDisk(localPath, wantHash string) bool {
	f, err := os.Open(localPath)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == wantHash
}

// pruneLocal walks target and deletes any regular file whose relative
// path is not a key in tree, then removes now-empty directories
// deepest-first. Failures are best-effort and never fatal.
func pruneLocal(target string, tree map[string]metadata.BackupObject) (int, error) {
	deleted := 0
	var dirs []string

	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == target {
			return nil
		}
		rel, relErr := filepath.Rel(target, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := tree[rel]; ok {
			return nil
		}
		if err := os.Remove(path); err == nil {
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		os.Remove(dir)
	}
	return deleted, nil
}
