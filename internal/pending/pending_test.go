package pending

import (
	"context"
	"testing"
	"time"

	"gib/internal/codec"
	"gib/internal/objectstore"
)

func TestJournalPersistAndList(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	j := New("backing up", true, 4096, 100, []string{"node_modules"})
	j.Append("aaaa")
	j.Append("bbbb")

	if err := j.Persist(ctx, store, "repo", "hash1", "", codec.DefaultLevel); err != nil {
		t.Fatalf("persist: %v", err)
	}

	entries, err := List(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Hash != "hash1" {
		t.Fatalf("got hash %q, want %q", entries[0].Hash, "hash1")
	}
	if len(entries[0].Pending.ProcessedChunks) != 2 {
		t.Fatalf("got %d processed chunks, want 2", len(entries[0].Pending.ProcessedChunks))
	}
}

func TestJournalDeleteRemovesEntry(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	j := New("m", false, 1024, 1, nil)
	if err := j.Persist(ctx, store, "repo", "hash1", "", codec.DefaultLevel); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := Delete(ctx, store, "repo", "hash1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err := List(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %d", len(entries))
	}
}

func TestJournalRunTicksAndStops(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	j := New("m", false, 1024, 1, nil)
	stop := j.Run(ctx, store, "repo", "hash1", "", codec.DefaultLevel, 10*time.Millisecond, nil)
	time.Sleep(35 * time.Millisecond)
	stop()

	entries, err := List(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the ticker to have persisted at least once, got %d entries", len(entries))
	}
}

func TestListToleratesNoJournals(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())
	entries, err := List(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty list, got %v", entries)
	}
}
