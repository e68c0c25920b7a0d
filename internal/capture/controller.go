// Package capture implements the note capture state machine. A [Controller]
// moves between [Onboarding], [Editing] and [Recording], owns the draft
// text and the single active dictation session, and commits finished drafts
// to the note store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxnote/internal/dictation"
	"github.com/MrWong99/voxnote/internal/notes"
	"github.com/MrWong99/voxnote/internal/observe"
)

var (
	// ErrMissingConfiguration is returned when recording is requested before
	// a recognition language is selected.
	ErrMissingConfiguration = errors.New("capture: no recognition language selected")

	// ErrRecordingActive is returned by Commit while dictation is running.
	ErrRecordingActive = errors.New("capture: recording in progress")

	// ErrInvalidTransition is returned when an event is not allowed in the
	// current mode.
	ErrInvalidTransition = errors.New("capture: invalid transition")

	// ErrUnknownLanguage is returned by SelectLanguage for a tag outside the
	// configured language list.
	ErrUnknownLanguage = errors.New("capture: unknown language")
)

// Option is a functional option for [New].
type Option func(*Controller)

// WithSink sets the event sink. Defaults to a sink that discards events.
func WithSink(s EventSink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLanguages sets the selectable recognition languages. An empty list
// accepts any non-empty tag.
func WithLanguages(tags ...string) Option {
	return func(c *Controller) { c.languages = slices.Clone(tags) }
}

// WithLanguage preselects a recognition language.
func WithLanguage(tag string) Option {
	return func(c *Controller) { c.language = tag }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the time source used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides how note ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// Controller is the note capture state machine. All methods are safe for
// concurrent use; events are processed one at a time.
type Controller struct {
	store     *notes.Store
	provider  dictation.Provider
	sink      EventSink
	languages []string
	logger    *slog.Logger
	metrics   *observe.Metrics
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	mode     Mode
	draft    string
	language string
	query    string
	notes    notes.Collection
	session  *dictation.Session
	// epoch is bumped by every event that starts or ends dictation so a
	// start whose stream finished opening late can tell it was superseded.
	epoch uint64
}

// New returns a controller in [Onboarding] with an empty collection. Call
// [Controller.Load] to read persisted notes.
func New(store *notes.Store, provider dictation.Provider, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		provider: provider,
		sink:     nopSink{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		notes:    notes.Collection{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.provider == nil {
		c.provider = dictation.Unavailable{Reason: "no provider"}
	}
	return c
}

// Load reads the persisted collection. Unreadable storage is logged and the
// controller carries on with an empty collection.
func (c *Controller) Load(ctx context.Context) {
	col, err := c.store.Load(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("capture: stored notes unreadable, starting empty",
			"key", c.store.Key(), "err", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = col
	c.sink.NotesChanged(notes.Filter(c.notes, c.query))
}

// Reload re-reads the persisted collection after an external change. Unlike
// Load it keeps the in-memory collection when storage cannot be read, so a
// later commit does not overwrite the stored notes with a partial set.
func (c *Controller) Reload(ctx context.Context) error {
	col, err := c.store.Load(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("capture: stored notes unreadable, keeping current notes",
			"key", c.store.Key(), "err", err)
		return fmt.Errorf("capture: reload: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = col
	c.sink.NotesChanged(notes.Filter(c.notes, c.query))
	return nil
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Mode:      c.mode,
		Draft:     c.draft,
		Language:  c.language,
		Languages: slices.Clone(c.languages),
		Query:     c.query,
		Notes:     slices.Clone(notes.Filter(c.notes, c.query)),
	}
}

// Notes returns the whole collection, newest first, ignoring the search
// query.
func (c *Controller) Notes() notes.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.notes)
}

// StartEditing switches from Onboarding to free-text entry. It keeps any
// retained draft and is ignored in other modes.
func (c *Controller) StartEditing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Onboarding {
		c.setModeLocked(Editing)
	}
}

// TextChanged replaces the draft with text. Outside Recording, an empty
// draft returns to Onboarding and a non-empty one enters Editing. While
// Recording the mode does not change.
func (c *Controller) TextChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setDraftLocked(text)
	if c.mode == Recording {
		return
	}
	if text == "" {
		c.setModeLocked(Onboarding)
	} else {
		c.setModeLocked(Editing)
	}
}

// SelectLanguage sets the recognition language used by the next recording.
func (c *Controller) SelectLanguage(tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectLanguageLocked(tag)
}

func (c *Controller) selectLanguageLocked(tag string) error {
	if tag == "" {
		return fmt.Errorf("capture: select language: %w", ErrMissingConfiguration)
	}
	if len(c.languages) > 0 && !slices.Contains(c.languages, tag) {
		return fmt.Errorf("capture: select language %q: %w", tag, ErrUnknownLanguage)
	}
	c.language = tag
	return nil
}

// StartRecording starts dictation in the selected language. It is allowed
// from Onboarding only. When no transcription capability exists it returns
// an error wrapping [dictation.ErrUnsupportedCapability]; without a selected
// language it returns [ErrMissingConfiguration]. Both leave the mode
// unchanged and emit a notice.
func (c *Controller) StartRecording(ctx context.Context) error {
	return c.startRecording(ctx, "")
}

// StartRecordingIn selects tag and starts dictation, as StartRecording.
func (c *Controller) StartRecordingIn(ctx context.Context, tag string) error {
	return c.startRecording(ctx, tag)
}

func (c *Controller) startRecording(ctx context.Context, tag string) error {
	// A lingering session is stopped before anything else. Stop must run
	// without the lock held because its callbacks take it.
	c.mu.Lock()
	prev := c.detachSessionLocked()
	if c.mode == Recording {
		c.setModeLocked(Onboarding)
	}
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	c.mu.Lock()
	if c.mode == Editing {
		c.mu.Unlock()
		return fmt.Errorf("capture: start recording from %s: %w", c.mode, ErrInvalidTransition)
	}
	if tag != "" {
		if err := c.selectLanguageLocked(tag); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if !c.provider.Supported() {
		err := fmt.Errorf("capture: start recording: %w", dictation.ErrUnsupportedCapability)
		c.noticeLocked(ctx, Notice{
			Code:    NoticeUnsupportedCapability,
			Message: "Speech recognition is not available on this system.",
			Err:     err,
		})
		c.mu.Unlock()
		c.logger.Info("capture: dictation unsupported", "status", c.provider.Status())
		return err
	}
	if c.language == "" {
		err := fmt.Errorf("capture: start recording: %w", ErrMissingConfiguration)
		c.noticeLocked(ctx, Notice{
			Code:    NoticeMissingConfiguration,
			Message: "Select a language to record your note.",
			Err:     err,
		})
		c.mu.Unlock()
		return err
	}
	c.epoch++
	epoch, lang := c.epoch, c.language
	c.mu.Unlock()

	// Opening the stream may dial a remote service or spawn a capture
	// process, so it runs unlocked.
	var sess *dictation.Session
	sess = dictation.NewSession(c.provider,
		func(text string) { c.onTranscript(sess, text) },
		func(err error) { c.onStreamError(sess, err) },
		dictation.WithLogger(c.logger),
		dictation.WithMetrics(c.metrics),
	)
	startErr := sess.Start(ctx, lang)

	c.mu.Lock()
	if startErr != nil {
		n := Notice{Code: NoticeDictationFailed, Message: "Could not start dictation.", Err: startErr}
		if errors.Is(startErr, dictation.ErrUnsupportedCapability) {
			n = Notice{Code: NoticeUnsupportedCapability, Message: "Speech recognition is not available on this system.", Err: startErr}
		}
		c.noticeLocked(ctx, n)
		c.mu.Unlock()
		return fmt.Errorf("capture: start recording: %w", startErr)
	}
	// Another event arrived while the stream was opening; it wins.
	if c.epoch != epoch || c.mode != Onboarding {
		mode := c.mode
		c.mu.Unlock()
		sess.Stop()
		return fmt.Errorf("capture: start recording superseded in %s: %w", mode, ErrInvalidTransition)
	}
	c.session = sess
	c.setModeLocked(Recording)
	c.mu.Unlock()
	return nil
}

// StopRecording stops dictation and returns to Onboarding, keeping the
// draft built from the last transcript. It is a no-op outside Recording.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	c.epoch++
	if c.mode != Recording {
		c.mu.Unlock()
		return
	}
	sess := c.detachSessionLocked()
	c.setModeLocked(Onboarding)
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// Commit saves the draft as a new note and resets to Onboarding with an
// empty draft. An empty draft makes Commit a no-op. While recording it
// returns [ErrRecordingActive].
//
// If the note could not be persisted, it is kept in memory, a notice is
// emitted and the returned error wraps [notes.ErrPersistenceFailure].
func (c *Controller) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == Recording {
		return ErrRecordingActive
	}
	if c.draft == "" {
		return nil
	}

	note := notes.Note{ID: c.newID(), CreatedAt: c.now(), Content: c.draft}
	col, err := c.store.Append(ctx, c.notes, note)
	if errors.Is(err, notes.ErrInvalidNote) {
		c.logger.Debug("capture: commit ignored", "err", err)
		return nil
	}

	c.notes = col
	c.setDraftLocked("")
	c.setModeLocked(Onboarding)
	c.sink.NotesChanged(notes.Filter(c.notes, c.query))

	if err != nil {
		c.noticeLocked(ctx, Notice{
			Code:    NoticePersistenceFailure,
			Message: "Note not saved; it may not survive a restart.",
			Err:     err,
		})
		return fmt.Errorf("capture: commit: %w", err)
	}
	c.noticeLocked(ctx, Notice{Code: NoticeNoteSaved, Message: "Note created."})
	return nil
}

// Cancel discards the draft, stops any dictation and returns to Onboarding.
func (c *Controller) Cancel() {
	c.mu.Lock()
	sess := c.detachSessionLocked()
	c.setDraftLocked("")
	c.setModeLocked(Onboarding)
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// DeleteNote removes the note with id. Unknown ids are not an error. Write
// failures keep the removal in memory and are reported like in Commit.
func (c *Controller) DeleteNote(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, err := c.store.Remove(ctx, c.notes, id)
	c.notes = col
	c.sink.NotesChanged(notes.Filter(c.notes, c.query))
	if err != nil {
		c.noticeLocked(ctx, Notice{
			Code:    NoticePersistenceFailure,
			Message: "Deletion not saved; the note may reappear after a restart.",
			Err:     err,
		})
		return fmt.Errorf("capture: delete note: %w", err)
	}
	return nil
}

// SearchChanged sets the search query and publishes the matching notes.
func (c *Controller) SearchChanged(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	c.sink.NotesChanged(notes.Filter(c.notes, c.query))
}

// Close stops any active dictation.
func (c *Controller) Close() {
	c.mu.Lock()
	sess := c.detachSessionLocked()
	if c.mode == Recording {
		c.setModeLocked(Onboarding)
	}
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// onTranscript applies a cumulative transcript as a full replacement of the
// draft. Updates from a session that is no longer active are dropped.
func (c *Controller) onTranscript(sess *dictation.Session, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess == nil || c.session != sess || c.mode != Recording {
		return
	}
	c.setDraftLocked(text)
}

// onStreamError keeps recording; the session has already logged the error.
func (c *Controller) onStreamError(sess *dictation.Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess == nil || c.session != sess {
		return
	}
	c.logger.Debug("capture: dictation continues after stream error", "err", err)
}

func (c *Controller) detachSessionLocked() *dictation.Session {
	c.epoch++
	s := c.session
	c.session = nil
	return s
}

func (c *Controller) setModeLocked(m Mode) {
	if c.mode == m {
		return
	}
	c.logger.Debug("capture: mode changed", "from", c.mode, "to", m)
	c.mode = m
	c.sink.ModeChanged(m)
}

func (c *Controller) setDraftLocked(text string) {
	if c.draft == text {
		return
	}
	c.draft = text
	c.sink.DraftChanged(text)
}

func (c *Controller) noticeLocked(ctx context.Context, n Notice) {
	c.metrics.RecordNotice(ctx, string(n.Code))
	c.sink.Notice(n)
}
