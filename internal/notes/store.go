package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxnote/internal/observe"
	"github.com/MrWong99/voxnote/internal/storage"
)

// DefaultKey is the storage key the collection is written under.
const DefaultKey = "notes"

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithKey overrides the storage key. Empty keys are ignored.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics the store records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store persists a [Collection] under a single key of a [storage.KV]. Every
// mutation re-serialises the whole collection before returning.
//
// A Store is the only writer of its key. It holds no collection state of its
// own; the caller owns the in-memory collection.
type Store struct {
	kv      storage.KV
	key     string
	logger  *slog.Logger
	metrics *observe.Metrics
}

// NewStore returns a Store writing through to kv.
func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Key returns the storage key the store writes under.
func (s *Store) Key() string { return s.key }

// record is the on-disk shape of a note. Older data carries the creation
// time under "date".
type record struct {
	ID        string     `json:"id"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Content   string     `json:"content"`
}

// Load reads the collection. A missing key yields an empty collection and no
// error. Unreadable or malformed data yields an empty collection and an error
// wrapping [ErrCorruptStorage]; callers typically log it and carry on empty.
func (s *Store) Load(ctx context.Context) (Collection, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return Collection{}, nil
	}
	if err != nil {
		s.metrics.RecordStorageFailure(ctx, "load")
		return Collection{}, fmt.Errorf("notes: load: %w: %w", ErrCorruptStorage, err)
	}

	c, err := decode(data)
	if err != nil {
		s.metrics.RecordStorageFailure(ctx, "load")
		return Collection{}, fmt.Errorf("notes: load: %w: %w", ErrCorruptStorage, err)
	}
	return c, nil
}

func decode(data []byte) (Collection, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		return nil, errors.New("stored value is not an array")
	}
	c := make(Collection, 0, len(recs))
	for _, r := range recs {
		n := Note{ID: r.ID, Content: r.Content}
		switch {
		case r.CreatedAt != nil:
			n.CreatedAt = *r.CreatedAt
		case r.Date != nil:
			n.CreatedAt = *r.Date
		}
		c = append(c, n)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Append returns a new collection with n prepended and writes it through.
//
// If n has empty content, an empty id or an id already in c, Append returns c
// unchanged and an error wrapping [ErrInvalidNote]. If the write fails, the
// new collection is still returned together with an error wrapping
// [ErrPersistenceFailure].
func (s *Store) Append(ctx context.Context, c Collection, n Note) (Collection, error) {
	switch {
	case n.Content == "":
		return c, fmt.Errorf("notes: append: %w: empty content", ErrInvalidNote)
	case n.ID == "":
		return c, fmt.Errorf("notes: append: %w: empty id", ErrInvalidNote)
	case c.Contains(n.ID):
		return c, fmt.Errorf("notes: append: %w: duplicate id %q", ErrInvalidNote, n.ID)
	}

	next := make(Collection, 0, len(c)+1)
	next = append(next, n)
	next = append(next, c...)

	if err := s.persist(ctx, next); err != nil {
		return next, fmt.Errorf("notes: append: %w", err)
	}
	s.metrics.NotesSaved.Add(ctx, 1)
	return next, nil
}

// Remove returns a new collection without the note with the given id and
// writes it through. An unknown id is not an error; the unchanged
// collection is still written. Write failures are reported like in
// [Store.Append].
func (s *Store) Remove(ctx context.Context, c Collection, id string) (Collection, error) {
	next := make(Collection, 0, len(c))
	removed := false
	for _, n := range c {
		if n.ID == id {
			removed = true
			continue
		}
		next = append(next, n)
	}

	if err := s.persist(ctx, next); err != nil {
		return next, fmt.Errorf("notes: remove: %w", err)
	}
	if removed {
		s.metrics.NotesDeleted.Add(ctx, 1)
	}
	return next, nil
}

// persist serialises the full collection and replaces the stored value.
func (s *Store) persist(ctx context.Context, c Collection) error {
	ctx, span := observe.StartSpan(ctx, "notes.persist")
	defer span.End()
	span.SetAttributes(
		attribute.String("notes.key", s.key),
		attribute.Int("notes.count", len(c)),
	)

	data, err := json.Marshal(c)
	if err != nil {
		return s.persistFailed(ctx, span, err)
	}

	start := time.Now()
	err = s.kv.Set(ctx, s.key, data)
	s.metrics.StorageWriteDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return s.persistFailed(ctx, span, err)
	}
	return nil
}

func (s *Store) persistFailed(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "write failed")
	s.metrics.RecordStorageFailure(ctx, "write")
	s.logger.ErrorContext(ctx, "notes: failed to persist collection",
		"key", s.key, "err", err)
	return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
}
