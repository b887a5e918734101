// Package backup implements the backup writer (C5): walks a source
// tree, chunks and deduplicates file content, uploads new chunks
// concurrently, builds the backup manifest, and journals progress so an
// interrupted run can be reasoned about afterward.
package backup

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
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gib/internal/chunkindex"
	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/logging"
	"gib/internal/metadata"
	"gib/internal/objectstore"
	"gib/internal/pending"
	"gib/internal/permissions"
	"gib/internal/summary"
)

// DefaultMaxConcurrent is the bounded-concurrency ceiling applied to
// per-file backup tasks (and, by the restore/delete/prune packages, to
// their own per-file/per-chunk fan-outs) unless a caller overrides it.
const DefaultMaxConcurrent = 100

// DefaultChunkSize is used when Options.ChunkSize is zero.
const DefaultChunkSize = 4 << 20 // 4 MiB

const journalInterval = time.Second

var uploadBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// Options configures a single backup run.
type Options struct {
	Key            string
	Store          objectstore.Store
	Password       string
	Compress       codec.Level
	ChunkSize      int64
	RootPath       string
	IgnorePatterns []string
	Message        string
	Author         string
	// Concurrency overrides DefaultMaxConcurrent when positive.
	Concurrency int64
	Logger      *slog.Logger
}

// Result reports the outcome of a successful backup.
type Result struct {
	Hash              string
	Timestamp         uint64
	WrittenBytes      uint64
	DeduplicatedBytes uint64
	FilesBackedUp     int
	// UpgradedFromPlaintext is true when a password was configured but
	// the chunk index previously on disk was plaintext.
	UpgradedFromPlaintext bool
}

type fileTask struct {
	absPath string
	relPath string
}

// Run executes a complete backup of opts.RootPath into opts.Store under
// opts.Key, returning the resulting manifest identity and byte counters.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.Default(opts.Logger).With("component", "backup")

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	maxConcurrent := opts.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	idx, loadInfo, err := chunkindex.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("backup: load chunk index: %w", err)
	}
	upgraded := opts.Password != "" && loadInfo.Existed && !loadInfo.WasEncrypted
	if upgraded {
		logger.Warn("chunk index was stored in plaintext; new chunks will be encrypted")
	}

	tasks, err := walk(opts.RootPath, opts.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("backup: walk %s: %w", opts.RootPath, err)
	}

	now := uint64(time.Now().Unix())
	hash := backupHash(opts.Message, opts.Author, now)

	journal := pending.New(opts.Message, true, uint64(chunkSize), uint32(maxConcurrent), opts.IgnorePatterns)
	if err := journal.Persist(ctx, opts.Store, opts.Key, hash, opts.Password, opts.Compress); err != nil {
		logger.Warn("pending journal persist failed", "error", err)
	}
	stopJournal := journal.Run(ctx, opts.Store, opts.Key, hash, opts.Password, opts.Compress, journalInterval, func(err error) {
		logger.Warn("pending journal persist failed", "error", err)
	})

	tree, writtenBytes, dedupBytes, err := backupFiles(ctx, opts, tasks, idx, journal, maxConcurrent, chunkSize, logger)
	stopJournal()
	if err != nil {
		return nil, fmt.Errorf("backup: %w (resume with: gib backup --continue %s)", err, shortHash(hash))
	}

	if err := idx.Save(ctx, opts.Store, opts.Key, opts.Password, opts.Compress); err != nil {
		return nil, fmt.Errorf("backup: persist chunk index: %w (resume with: gib backup --continue %s)", err, shortHash(hash))
	}

	b := metadata.Backup{
		Message:   opts.Message,
		Hash:      hash,
		Timestamp: now,
		Author:    opts.Author,
		Tree:      tree,
	}
	data, err := metadata.MarshalBackup(b)
	if err != nil {
		return nil, fmt.Errorf("backup: marshal manifest: %w", err)
	}
	blob, err := codec.Encode(data, opts.Compress, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("backup: encode manifest: %w", err)
	}
	if err := opts.Store.Write(ctx, layout.BackupPath(opts.Key, hash), blob); err != nil {
		return nil, fmt.Errorf("backup: persist manifest: %w (resume with: gib backup --continue %s)", err, shortHash(hash))
	}

	summaries, err := summary.Load(ctx, opts.Store, opts.Key, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("backup: load summaries: %w", err)
	}
	ts := now
	size := writtenBytes
	summaries = summary.Prepend(summaries, metadata.Summary{
		Message:   opts.Message,
		Hash:      hash,
		Timestamp: &ts,
		Size:      &size,
	})
	if err := summary.Save(ctx, opts.Store, opts.Key, opts.Password, opts.Compress, summaries); err != nil {
		return nil, fmt.Errorf("backup: persist summaries: %w (resume with: gib backup --continue %s)", err, shortHash(hash))
	}

	if err := pending.Delete(ctx, opts.Store, opts.Key, hash); err != nil {
		logger.Warn("failed to remove pending journal after successful backup", "error", err)
	}

	logger.Info("backup complete", "hash", shortHash(hash), "files", len(tree), "written_bytes", writtenBytes, "deduplicated_bytes", dedupBytes)

	return &Result{
		Hash:                  hash,
		Timestamp:             now,
		WrittenBytes:          writtenBytes,
		DeduplicatedBytes:     dedupBytes,
		FilesBackedUp:         len(tree),
		UpgradedFromPlaintext: upgraded,
	}, nil
}

// backupFiles runs the per-file backup tasks bounded by a semaphore,
// accumulating every file-level error instead of aborting on the first.
func backupFiles(ctx context.Context, opts Options, tasks []fileTask, idx *chunkindex.Index, journal *pending.Journal, maxConcurrent, chunkSize int64, logger *slog.Logger) (map[string]metadata.BackupObject, uint64, uint64, error) {
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu           sync.Mutex
		tree         = make(map[string]metadata.BackupObject, len(tasks))
		writtenBytes uint64
		dedupBytes   uint64
		errs         []error
		wg           sync.WaitGroup
	)

	for _, task := range tasks {
		task := task
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", task.relPath, err))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			obj, written, deduped, err := backupOneFile(ctx, opts, task, idx, journal, chunkSize, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", task.relPath, err))
				return
			}
			tree[task.relPath] = obj
			writtenBytes += written
			dedupBytes += deduped
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, 0, 0, errors.Join(errs...)
	}
	return tree, writtenBytes, dedupBytes, nil
}

func backupOneFile(ctx context.Context, opts Options, task fileTask, idx *chunkindex.Index, journal *pending.Journal, chunkSize int64, logger *slog.Logger) (metadata.BackupObject, uint64, uint64, error) {
	f, err := os.Open(task.absPath)
	if err != nil {
		return metadata.BackupObject{}, 0, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return metadata.BackupObject{}, 0, 0, fmt.Errorf("stat: %w", err)
	}

	fileHasher := sha256.New()
	buf := make([]byte, chunkSize)
	var chunks []string
	var writtenBytes, dedupBytes uint64

	for {
		if err := ctx.Err(); err != nil {
			return metadata.BackupObject{}, 0, 0, err
		}
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			chunk := buf[:n]
			fileHasher.Write(chunk)
			sum := sha256.Sum256(chunk)
			h := hex.EncodeToString(sum[:])
			chunks = append(chunks, h)

			if idx.Increment(h) {
				dedupBytes += uint64(n)
			} else {
				if err := uploadChunk(ctx, opts, h, chunk); err != nil {
					return metadata.BackupObject{}, 0, 0, err
				}
				writtenBytes += uint64(n)
				journal.Append(h)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return metadata.BackupObject{}, 0, 0, fmt.Errorf("read: %w", readErr)
		}
	}

	obj := metadata.BackupObject{
		Hash:        hex.EncodeToString(fileHasher.Sum(nil)),
		Size:        info.Size(),
		ContentType: metadata.ContentType,
		Permissions: permissions.Capture(task.absPath, info),
		Chunks:      chunks,
	}
	return obj, writtenBytes, dedupBytes, nil
}

func uploadChunk(ctx context.Context, opts Options, hash string, chunk []byte) error {
	blob, err := codec.Encode(chunk, opts.Compress, opts.Password)
	if err != nil {
		return fmt.Errorf("encode chunk %s: %w", hash, err)
	}
	path := layout.ChunkPath(opts.Key, hash)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := opts.Store.Write(ctx, path, blob); err != nil {
			lastErr = err
			if attempt < 3 {
				select {
				case <-time.After(uploadBackoff[attempt-1]):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			return fmt.Errorf("write chunk %s (attempt %d/3): %w", hash, attempt, err)
		}
		return nil
	}
	return fmt.Errorf("write chunk %s: %w", hash, lastErr)
}

// walk collects every regular file under root, pruning any subtree whose
// entry name matches a literal in ignorePatterns.
func walk(root string, ignorePatterns []string) ([]fileTask, error) {
	ignore := make(map[string]bool, len(ignorePatterns))
	for _, p := range ignorePatterns {
		ignore[p] = true
	}

	var tasks []fileTask
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if ignore[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
		tasks = append(tasks, fileTask{absPath: path, relPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func backupHash(message, author string, unixSeconds uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", message, author, unixSeconds)))
	return hex.EncodeToString(sum[:])
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
