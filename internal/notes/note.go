// Package notes owns the durable note collection: the [Note] and
// [Collection] types, the write-through [Store], and the pure [Filter]
// used by search.
package notes

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by the store. Callers match them with [errors.Is].
var (
	// ErrInvalidNote is returned when a note has empty content or an id that
	// is empty or already present in the collection. The collection is left
	// unchanged.
	ErrInvalidNote = errors.New("notes: invalid note")

	// ErrCorruptStorage is returned by [Store.Load] when the stored value
	// cannot be read or does not decode into a valid collection.
	ErrCorruptStorage = errors.New("notes: corrupt storage")

	// ErrPersistenceFailure is returned when the updated collection could not
	// be written. The returned collection still carries the update.
	ErrPersistenceFailure = errors.New("notes: persistence failure")
)

// Note is a single captured note. Notes are immutable once created; editing
// means replacing the whole note.
type Note struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Content   string    `json:"content"`
}

// NewNote returns a note with a fresh random id, the current time and the
// given content.
func NewNote(content string) Note {
	return Note{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Content:   content,
	}
}

// Collection is an ordered list of notes, newest first. Ids are unique.
//
// Collections are treated as values: [Store.Append] and [Store.Remove] return
// a new slice and never modify the one passed in.
type Collection []Note

// Index returns the position of the note with the given id, or -1.
func (c Collection) Index(id string) int {
	for i, n := range c {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether a note with the given id is present.
func (c Collection) Contains(id string) bool {
	return c.Index(id) >= 0
}

// validate checks the collection-level invariants.
func (c Collection) validate() error {
	seen := make(map[string]struct{}, len(c))
	for i, n := range c {
		if n.ID == "" {
			return fmt.Errorf("note %d has no id", i)
		}
		if n.Content == "" {
			return fmt.Errorf("note %s has empty content", n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate note id %s", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}
