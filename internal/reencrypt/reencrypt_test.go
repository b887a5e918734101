package reencrypt

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gib/internal/backup"
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
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReencryptRewritesPlaintextBlobs(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", bytes.Repeat([]byte{0x41}, 4096))

	store := objectstore.NewDirStore(t.TempDir())
	if _, err := backup.Run(ctx, backup.Options{
		Key:       "repo",
		Store:     store,
		Compress:  codec.DefaultLevel,
		ChunkSize: 1024,
		RootPath:  src,
		Message:   "m",
		Author:    "a",
	}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	res, err := Run(ctx, Options{
		Key:      "repo",
		Store:    store,
		Password: "hunter2",
		Compress: codec.DefaultLevel,
	})
	if err != nil {
		t.Fatalf("reencrypt: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("unexpected failures: %d", res.Failed)
	}
	if res.Encrypted == 0 {
		t.Fatalf("expected at least one blob to be newly encrypted")
	}

	paths, err := collectPaths(ctx, Options{Key: "repo", Store: store})
	if err != nil {
		t.Fatalf("collectPaths: %v", err)
	}
	for _, p := range paths {
		blob, err := store.Read(ctx, p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !codec.IsEncrypted(blob) {
			t.Fatalf("blob %s was not re-encrypted", p)
		}
	}
}

func TestReencryptRequiresPassword(t *testing.T) {
	_, err := Run(context.Background(), Options{Key: "repo", Store: objectstore.NewDirStore(t.TempDir())})
	if err != ErrPasswordRequired {
		t.Fatalf("got %v, want ErrPasswordRequired", err)
	}
}

func TestReencryptSkipsAlreadyEncrypted(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", []byte("hello world"))

	store := objectstore.NewDirStore(t.TempDir())
	if _, err := backup.Run(ctx, backup.Options{
		Key:       "repo",
		Store:     store,
		Password:  "hunter2",
		Compress:  codec.DefaultLevel,
		ChunkSize: 1024,
		RootPath:  src,
		Message:   "m",
		Author:    "a",
	}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	res, err := Run(ctx, Options{Key: "repo", Store: store, Password: "hunter2", Compress: codec.DefaultLevel})
	if err != nil {
		t.Fatalf("reencrypt: %v", err)
	}
	if res.Encrypted != 0 {
		t.Fatalf("expected nothing new to encrypt, got %d", res.Encrypted)
	}
	if res.AlreadyEncrypted == 0 {
		t.Fatalf("expected some already-encrypted blobs")
	}
}
