// Package reencrypt implements the password-upgrade operation: every
// blob a repository currently owns (the chunk index, the summaries
// list, every chunk, every backup manifest) is read through the codec
// and rewritten under the new password, leaving already-encrypted
// blobs untouched. Converting a plaintext repository created before a
// password was configured is the intended use.
package reencrypt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"gib/internal/backup"
	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/logging"
	"gib/internal/objectstore"
)

// ErrPasswordRequired is returned when Options.Password is empty: this
// operation only ever raises an existing repository's encryption, it
// never removes it.
var ErrPasswordRequired = errors.New("reencrypt: password is required")

// Options configures a single re-encrypt run.
type Options struct {
	Key         string
	Store       objectstore.Store
	Password    string
	Compress    codec.Level
	Concurrency int64
	Logger      *slog.Logger
}

// Result reports what re-encrypt found and changed.
type Result struct {
	Encrypted        int
	AlreadyEncrypted int
	Failed           int
}

// Run rewrites every blob under opts.Key through the codec with
// opts.Password, leaving blobs that are already GIB1-framed untouched.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Password == "" {
		return nil, ErrPasswordRequired
	}
	logger := logging.Default(opts.Logger).With("component", "reencrypt")

	paths, err := collectPaths(ctx, opts)
	if err != nil {
		return nil, err
	}

	maxConcurrent := opts.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = backup.DefaultMaxConcurrent
	}
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu               sync.Mutex
		encrypted        int
		alreadyEncrypted int
		failed           int
		wg               sync.WaitGroup
	)
	for _, p := range paths {
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

			wasEncrypted, err := reencryptOne(ctx, opts, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("failed to re-encrypt blob", "path", p, "error", err)
				failed++
				return
			}
			if wasEncrypted {
				alreadyEncrypted++
			} else {
				encrypted++
			}
		}()
	}
	wg.Wait()

	logger.Info("reencrypt complete", "encrypted", encrypted, "already_encrypted", alreadyEncrypted, "failed", failed)

	return &Result{Encrypted: encrypted, AlreadyEncrypted: alreadyEncrypted, Failed: failed}, nil
}

func collectPaths(ctx context.Context, opts Options) ([]string, error) {
	paths := []string{layout.ChunkIndexPath(opts.Key), layout.SummariesPath(opts.Key)}

	chunkPaths, err := opts.Store.List(ctx, layout.ChunksDir(opts.Key))
	if err != nil {
		return nil, fmt.Errorf("reencrypt: list chunks: %w", err)
	}
	paths = append(paths, chunkPaths...)

	backupPaths, err := opts.Store.List(ctx, layout.BackupsDir(opts.Key))
	if err != nil {
		return nil, fmt.Errorf("reencrypt: list backups: %w", err)
	}
	paths = append(paths, backupPaths...)

	return paths, nil
}

// reencryptOne reads path, decoding under opts.Password, and — unless it
// was already GIB1-framed — re-encodes and writes it back encrypted.
func reencryptOne(ctx context.Context, opts Options, path string) (wasEncrypted bool, err error) {
	blob, err := opts.Store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read: %w", err)
	}
	res, err := codec.Decode(blob, opts.Password)
	if err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	if res.WasEncrypted {
		return true, nil
	}
	newBlob, err := codec.Encode(res.Plain, opts.Compress, opts.Password)
	if err != nil {
		return false, fmt.Errorf("encode: %w", err)
	}
	if err := opts.Store.Write(ctx, path, newBlob); err != nil {
		return false, fmt.Errorf("write: %w", err)
	}
	return false, nil
}
