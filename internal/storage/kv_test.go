package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxnote/internal/storage"
)

func TestMem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		var m storage.Mem
		if _, err := m.Get(ctx, "notes"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Get: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set replaces value", func(t *testing.T) {
		t.Parallel()
		m := storage.NewMem()
		if err := m.Set(ctx, "notes", []byte("one")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := m.Set(ctx, "notes", []byte("two")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := m.Get(ctx, "notes")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "two" {
			t.Fatalf("Get = %q, want %q", got, "two")
		}
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		t.Parallel()
		m := storage.NewMem()
		buf := []byte("abc")
		_ = m.Set(ctx, "k", buf)
		buf[0] = 'x'
		got, _ := m.Get(ctx, "k")
		got[1] = 'y'
		again, _ := m.Get(ctx, "k")
		if string(again) != "abc" {
			t.Fatalf("stored value was aliased: %q", again)
		}
	})
}
