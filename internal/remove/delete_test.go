package remove

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gib/internal/backup"
	"gib/internal/chunkindex"
	"gib/internal/codec"
	"gib/internal/objectstore"
)

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDeleteOfTwoSnapshotsKeepsSharedChunk(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	content := make([]byte, 10*1024*1024)
	for i := range content {
		content[i] = 0x41
	}
	writeFile(t, src, "a.txt", content)

	store := objectstore.NewDirStore(t.TempDir())
	opts := backup.Options{
		Key:       "repo",
		Store:     store,
		Compress:  codec.DefaultLevel,
		ChunkSize: 1024 * 1024,
		RootPath:  src,
		Message:   "first",
		Author:    "a",
	}
	res1, err := backup.Run(ctx, opts)
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}
	opts.Message = "second"
	res2, err := backup.Run(ctx, opts)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}

	if _, err := Run(ctx, Options{Key: "repo", Store: store, BackupSelector: res2.Hash, Compress: codec.DefaultLevel}); err != nil {
		t.Fatalf("delete second: %v", err)
	}
	idx, _, err := chunkindex.Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("index should still have the shared chunk, got %d entries", idx.Len())
	}

	if _, err := Run(ctx, Options{Key: "repo", Store: store, BackupSelector: res1.Hash, Compress: codec.DefaultLevel}); err != nil {
		t.Fatalf("delete first: %v", err)
	}
	idx2, _, err := chunkindex.Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if idx2.Len() != 0 {
		t.Fatalf("index should be empty after deleting the last backup, got %d entries", idx2.Len())
	}
}
