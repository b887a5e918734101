package summary

import (
	"context"
	"testing"

	"gib/internal/metadata"
	"gib/internal/objectstore"
)

func u64(v uint64) *uint64 { return &v }

func TestLoadAbsentIsEmpty(t *testing.T) {
	store := objectstore.NewDirStore(t.TempDir())
	list, err := Load(context.Background(), store, "repo", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewDirStore(t.TempDir())

	list := Prepend(nil, metadata.Summary{Message: "first", Hash: "aaaa", Timestamp: u64(1), Size: u64(100)})
	if err := Save(ctx, store, "repo", "", 3, list); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(ctx, store, "repo", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "aaaa" {
		t.Fatalf("got %+v", got)
	}
}

func TestPrependIsNewestFirst(t *testing.T) {
	list := Prepend(nil, metadata.Summary{Hash: "first"})
	list = Prepend(list, metadata.Summary{Hash: "second"})
	if list[0].Hash != "second" || list[1].Hash != "first" {
		t.Fatalf("got %+v, want [second first]", list)
	}
}

func TestRemoveFiltersByHash(t *testing.T) {
	list := []metadata.Summary{{Hash: "a"}, {Hash: "b"}, {Hash: "a"}}
	got := Remove(list, "a")
	if len(got) != 1 || got[0].Hash != "b" {
		t.Fatalf("got %+v, want [b]", got)
	}
}

func TestResolveShortHashPrefix(t *testing.T) {
	list := []metadata.Summary{{Hash: "deadbeefcafebabe"}}
	got, ok := Resolve(list, "deadbeef")
	if !ok || got.Hash != "deadbeefcafebabe" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestResolveNoMatch(t *testing.T) {
	list := []metadata.Summary{{Hash: "deadbeef"}}
	_, ok := Resolve(list, "feedface")
	if ok {
		t.Fatalf("expected no match")
	}
}
