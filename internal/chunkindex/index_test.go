package chunkindex

import (
	"context"
	"testing"

	"gib/internal/codec"
	"gib/internal/objectstore"
)

func TestIncrementDecrement(t *testing.T) {
	idx := New()
	if hit := idx.Increment("h1"); hit {
		t.Fatalf("first increment should not be a dedup hit")
	}
	if hit := idx.Increment("h1"); !hit {
		t.Fatalf("second increment should be a dedup hit")
	}
	if rc := idx.Refcount("h1"); rc != 2 {
		t.Fatalf("got refcount %d, want 2", rc)
	}
	if removed := idx.Decrement("h1"); removed {
		t.Fatalf("decrement from 2 should not remove entry")
	}
	if removed := idx.Decrement("h1"); !removed {
		t.Fatalf("decrement from 1 should remove entry")
	}
	if idx.Has("h1") {
		t.Fatalf("entry should be gone after refcount reaches 0")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	idx := New()
	idx.Increment("aaa")
	idx.Increment("aaa")
	idx.Increment("bbb")

	if err := idx.Save(ctx, store, "repo", "", codec.DefaultLevel); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, info, err := Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !info.Existed {
		t.Fatalf("expected Existed=true after a prior Save")
	}
	if loaded.Refcount("aaa") != 2 || loaded.Refcount("bbb") != 1 {
		t.Fatalf("unexpected loaded state: aaa=%d bbb=%d", loaded.Refcount("aaa"), loaded.Refcount("bbb"))
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())
	idx, _, err := Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
}
