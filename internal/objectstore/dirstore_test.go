package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirStoreWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewDirStore(t.TempDir())

	if err := s.Write(ctx, "a/b/c", []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(ctx, "a/b/c")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	if err := s.Delete(ctx, "a/b/c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Read(ctx, "a/b/c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDirStoreReadMissingIsNotFound(t *testing.T) {
	s := NewDirStore(t.TempDir())
	if _, err := s.Read(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDirStoreDeleteMissingIsNotError(t *testing.T) {
	s := NewDirStore(t.TempDir())
	if err := s.Delete(context.Background(), "nope"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestDirStoreListNonexistentPrefixIsEmpty(t *testing.T) {
	s := NewDirStore(t.TempDir())
	got, err := s.List(context.Background(), "nope")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestDirStoreListRecursive(t *testing.T) {
	ctx := context.Background()
	s := NewDirStore(t.TempDir())

	if err := s.Write(ctx, "key/chunks/ab/cdef", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "key/chunks/12/3456", []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := s.List(ctx, "key/chunks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 entries", got)
	}
}

func TestDirStoreDeleteRemovesEmptyParentDirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewDirStore(root)

	if err := s.Write(ctx, "key/chunks/ab/cdef", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Delete(ctx, "key/chunks/ab/cdef"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.List(ctx, "key"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "key", "chunks", "ab")); statErr == nil {
		t.Fatalf("expected empty fan-out dir to be removed")
	}
}
