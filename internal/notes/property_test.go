package notes_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/MrWong99/voxnote/internal/notes"
	"github.com/MrWong99/voxnote/internal/observe/observetest"
	"github.com/MrWong99/voxnote/internal/storage"
)

// contentGenerator generates non-empty note content, including accented
// letters so case folding is exercised beyond ASCII.
func contentGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9 àéíóúçãõÀÉÍÓÚÇÃÕ.,!?]{1,60}`)
}

// collectionGenerator generates a valid collection with unique ids.
func collectionGenerator() *rapid.Generator[notes.Collection] {
	return rapid.Custom(func(t *rapid.T) notes.Collection {
		n := rapid.IntRange(0, 12).Draw(t, "size")
		c := make(notes.Collection, 0, n)
		for i := 0; i < n; i++ {
			nt := notes.NewNote(contentGenerator().Draw(t, "content"))
			c = append(c, nt)
		}
		return c
	})
}

func newPropertyStore(tb testing.TB) (*notes.Store, *storage.Mem) {
	kv := storage.NewMem()
	rec := observetest.New(tb)
	return notes.NewStore(kv, notes.WithMetrics(rec.Metrics)), kv
}

func TestFilter_EmptyQueryIdentity_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		c := collectionGenerator().Draw(rt, "collection")
		got := notes.Filter(c, "")
		if len(got) != len(c) {
			rt.Fatalf("len = %d, want %d", len(got), len(c))
		}
		for i := range c {
			if got[i] != c[i] {
				rt.Fatalf("note %d differs", i)
			}
		}
	})
}

func TestAppendThenSearchFindsNote_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s, _ := newPropertyStore(t)
		c := collectionGenerator().Draw(rt, "collection")

		n := notes.NewNote(contentGenerator().Draw(rt, "content"))
		c, err := s.Append(ctx, c, n)
		if err != nil {
			rt.Fatalf("Append: %v", err)
		}

		runes := []rune(n.Content)
		from := rapid.IntRange(0, len(runes)-1).Draw(rt, "from")
		to := rapid.IntRange(from+1, len(runes)).Draw(rt, "to")
		query := string(runes[from:to])
		switch rapid.IntRange(0, 2).Draw(rt, "case") {
		case 1:
			query = strings.ToUpper(query)
		case 2:
			query = strings.ToLower(query)
		}

		if !notes.Filter(c, query).Contains(n.ID) {
			rt.Fatalf("Filter(%q) does not contain note with content %q", query, n.Content)
		}
	})
}

func TestRemoveThenSearchNeverFindsNote_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s, _ := newPropertyStore(t)
		c := collectionGenerator().Draw(rt, "collection")
		n := notes.NewNote(contentGenerator().Draw(rt, "content"))

		c, err := s.Append(ctx, c, n)
		if err != nil {
			rt.Fatalf("Append: %v", err)
		}
		c, err = s.Remove(ctx, c, n.ID)
		if err != nil {
			rt.Fatalf("Remove: %v", err)
		}
		if notes.Filter(c, n.Content).Contains(n.ID) {
			rt.Fatal("removed note still returned by Filter")
		}
	})
}

func TestAppendEmptyContentIsNoop_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s, _ := newPropertyStore(t)
		c := collectionGenerator().Draw(rt, "collection")

		got, err := s.Append(ctx, c, notes.NewNote(""))
		if !errors.Is(err, notes.ErrInvalidNote) {
			rt.Fatalf("Append: expected ErrInvalidNote, got %v", err)
		}
		if len(got) != len(c) {
			rt.Fatalf("len = %d, want %d", len(got), len(c))
		}
		for i := range c {
			if got[i] != c[i] {
				rt.Fatalf("note %d changed", i)
			}
		}
	})
}

func TestLoadAfterAppendRoundTrip_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s, _ := newPropertyStore(t)

		// Seed storage with an arbitrary prior collection.
		for _, prior := range collectionGenerator().Draw(rt, "prior") {
			loaded, err := s.Load(ctx)
			if err != nil {
				rt.Fatalf("Load: %v", err)
			}
			if _, err := s.Append(ctx, loaded, prior); err != nil {
				rt.Fatalf("Append: %v", err)
			}
		}

		loaded, err := s.Load(ctx)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		n := notes.NewNote(contentGenerator().Draw(rt, "content"))
		if _, err := s.Append(ctx, loaded, n); err != nil {
			rt.Fatalf("Append: %v", err)
		}

		again, err := s.Load(ctx)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if len(again) == 0 || again[0].ID != n.ID || again[0].Content != n.Content {
			rt.Fatalf("note not at the front after reload: %+v", again)
		}
		count := 0
		for _, x := range again {
			if x.ID == n.ID {
				count++
			}
		}
		if count != 1 {
			rt.Fatalf("note appears %d times, want 1", count)
		}
	})
}
