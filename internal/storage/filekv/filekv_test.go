package filekv_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxnote/internal/storage"
	"github.com/MrWong99/voxnote/internal/storage/filekv"
)

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	s, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.Get(ctx, "notes"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get on empty store: expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "notes", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "notes", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A second store over the same directory sees the latest value.
	reopened, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := reopened.Get(ctx, "notes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("Get = %q, want %q", got, "[]")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "voxnote-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStore_InvalidKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := filekv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, key := range []string{"", "../escape", `a\b`, ".."} {
		if err := s.Set(ctx, key, []byte("x")); err == nil {
			t.Errorf("Set(%q): expected error", key)
		}
	}
}

func TestOpen_EmptyDir(t *testing.T) {
	t.Parallel()
	if _, err := filekv.Open(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestStore_SetFailsWhenDirectoryIsGone(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "gone")
	s, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if err := s.Set(context.Background(), "notes", []byte("[]")); err == nil {
		t.Fatal("expected Set to fail when the directory no longer exists")
	}
}
