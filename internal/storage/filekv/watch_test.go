package filekv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxnote/internal/storage/filekv"
)

func startWatch(t *testing.T, s *filekv.Store, key string) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, key, func() { changes <- struct{}{} })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Watch: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Watch did not return after cancel")
		}
	})
	// Give the watcher time to register before the test writes.
	time.Sleep(100 * time.Millisecond)
	return changes
}

func TestWatch_ReportsForeignWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	other, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	changes := startWatch(t, s, "notes")

	if err := other.Set(context.Background(), "notes", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("foreign write not reported")
	}
}

func TestWatch_IgnoresOwnWritesAndOtherKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := filekv.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	changes := startWatch(t, s, "notes")

	ctx := context.Background()
	if err := s.Set(ctx, "notes", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-changes:
		t.Fatal("own write or unrelated key reported as a change")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_InvalidKey(t *testing.T) {
	t.Parallel()
	s, err := filekv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Watch(context.Background(), "../x", func() {}); err == nil {
		t.Fatal("expected error for invalid key")
	}
}
