package prune

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gib/internal/backup"
	"gib/internal/chunkindex"
	"gib/internal/codec"
	"gib/internal/objectstore"
	"gib/internal/pending"
)

func TestPruneRemovesOrphanChunksOnly(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	root := t.TempDir()
	store := objectstore.NewDirStore(root)
	if _, err := backup.Run(ctx, backup.Options{
		Key: "repo", Store: store, Compress: codec.DefaultLevel,
		ChunkSize: 1024, RootPath: src, Message: "m", Author: "a",
	}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	idx, _, err := chunkindex.Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 chunk, got %d", idx.Len())
	}

	orphanPath := filepath.Join(root, "repo", "chunks", "ff", "orphan-chunk-bytes")
	if err := os.MkdirAll(filepath.Dir(orphanPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(orphanPath, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	candidates, err := Plan(ctx, Options{Key: "repo", Store: store})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected exactly 1 orphan candidate, got %d: %v", len(candidates), candidates)
	}

	res, err := Run(ctx, Options{Key: "repo", Store: store})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", res.Removed)
	}
	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Fatalf("orphan chunk should have been removed")
	}

	idx2, _, err := chunkindex.Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if idx2.Len() != 1 {
		t.Fatalf("prune must never remove a chunk still referenced by the index")
	}
}

func TestPruneRemovesStrayPendingJournal(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	j := pending.New("interrupted", true, 1024, 1, nil)
	j.Append("aaaa")
	if err := j.Persist(ctx, store, "repo", "deadbeef", "", codec.DefaultLevel); err != nil {
		t.Fatalf("persist journal: %v", err)
	}

	res, err := Run(ctx, Options{Key: "repo", Store: store})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Removed != 1 {
		t.Fatalf("Removed = %d, want 1 (the stray journal)", res.Removed)
	}

	entries, err := pending.List(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no pending journals after prune, got %d", len(entries))
	}
}
