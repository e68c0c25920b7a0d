package capture_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxnote/internal/capture"
	"github.com/MrWong99/voxnote/internal/dictation"
	dictmock "github.com/MrWong99/voxnote/internal/dictation/mock"
	"github.com/MrWong99/voxnote/internal/notes"
	"github.com/MrWong99/voxnote/internal/observe/observetest"
	"github.com/MrWong99/voxnote/internal/storage"
)

// sink records every event the controller publishes.
type sink struct {
	mu      sync.Mutex
	modes   []capture.Mode
	notices []capture.Notice
	visible notes.Collection
	drafts  chan string
}

func newSink() *sink { return &sink{drafts: make(chan string, 256)} }

func (s *sink) ModeChanged(m capture.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, m)
}

func (s *sink) DraftChanged(d string) { s.drafts <- d }

func (s *sink) NotesChanged(v notes.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
}

func (s *sink) Notice(n capture.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *sink) noticeCodes() []capture.NoticeCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capture.NoticeCode, len(s.notices))
	for i, n := range s.notices {
		out[i] = n.Code
	}
	return out
}

// waitDraft consumes draft events until one equals want.
func (s *sink) waitDraft(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case d := <-s.drafts:
			if d == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for draft %q", want)
		}
	}
}

// failingKV rejects every write.
type failingKV struct{ storage.Mem }

func (*failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

type fixture struct {
	ctrl     *capture.Controller
	sink     *sink
	provider *dictmock.Provider
	kv       storage.KV
	met      *observetest.Recorder
}

func newFixture(t *testing.T, kv storage.KV, opts ...capture.Option) *fixture {
	t.Helper()
	if kv == nil {
		kv = storage.NewMem()
	}
	met := observetest.New(t)
	sk := newSink()
	p := &dictmock.Provider{}
	ids := 0
	base := []capture.Option{
		capture.WithSink(sk),
		capture.WithMetrics(met.Metrics),
		capture.WithLanguages("pt-BR", "en-US"),
		capture.WithClock(func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }),
		capture.WithIDGenerator(func() string { ids++; return fmt.Sprintf("note-%d", ids) }),
	}
	store := notes.NewStore(kv, notes.WithMetrics(met.Metrics))
	ctrl := capture.New(store, p, append(base, opts...)...)
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, sink: sk, provider: p, kv: kv, met: met}
}

func (f *fixture) reload(t *testing.T) notes.Collection {
	t.Helper()
	col, err := notes.NewStore(f.kv, notes.WithMetrics(f.met.Metrics)).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return col
}

func TestController_InitialState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	v := f.ctrl.View()
	if v.Mode != capture.Onboarding || v.Draft != "" || v.Language != "" || len(v.Notes) != 0 {
		t.Fatalf("initial view = %+v", v)
	}
	if len(v.Languages) != 2 {
		t.Errorf("Languages = %v", v.Languages)
	}
}

func TestController_TypeAndCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	f.ctrl.StartEditing()
	if got := f.ctrl.View().Mode; got != capture.Editing {
		t.Fatalf("mode after StartEditing = %v", got)
	}
	f.ctrl.TextChanged("Buy milk")
	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v := f.ctrl.View()
	if v.Mode != capture.Onboarding || v.Draft != "" {
		t.Fatalf("after commit: mode=%v draft=%q", v.Mode, v.Draft)
	}
	if len(v.Notes) != 1 || v.Notes[0].Content != "Buy milk" || v.Notes[0].ID != "note-1" {
		t.Fatalf("notes = %+v", v.Notes)
	}
	if persisted := f.reload(t); len(persisted) != 1 || persisted[0].Content != "Buy milk" {
		t.Fatalf("persisted = %+v", persisted)
	}
	codes := f.sink.noticeCodes()
	if len(codes) != 1 || codes[0] != capture.NoticeNoteSaved {
		t.Errorf("notices = %v, want [note_saved]", codes)
	}
}

func TestController_EmptyDraftReturnsToOnboarding(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.ctrl.TextChanged("a")
	if got := f.ctrl.View().Mode; got != capture.Editing {
		t.Fatalf("mode = %v, want editing", got)
	}
	f.ctrl.TextChanged("")
	if got := f.ctrl.View().Mode; got != capture.Onboarding {
		t.Fatalf("mode = %v, want onboarding", got)
	}
}

func TestController_CommitEmptyDraftIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.ctrl.StartEditing()
	if err := f.ctrl.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := f.ctrl.View(); got.Mode != capture.Editing || len(got.Notes) != 0 {
		t.Fatalf("view = %+v", got)
	}
	if _, err := f.kv.Get(context.Background(), notes.DefaultKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("empty commit wrote to storage: %v", err)
	}
}

func TestController_CancelDiscardsDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.ctrl.TextChanged("throwaway")
	f.ctrl.Cancel()
	v := f.ctrl.View()
	if v.Mode != capture.Onboarding || v.Draft != "" || len(v.Notes) != 0 {
		t.Fatalf("view after cancel = %+v", v)
	}
}

func TestController_RecordWithoutLanguage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	err := f.ctrl.StartRecording(context.Background())
	if !errors.Is(err, capture.ErrMissingConfiguration) {
		t.Fatalf("StartRecording: expected ErrMissingConfiguration, got %v", err)
	}
	if got := f.ctrl.View().Mode; got != capture.Onboarding {
		t.Errorf("mode = %v, want onboarding", got)
	}
	if f.provider.Opens() != 0 {
		t.Errorf("dictation started %d times, want 0", f.provider.Opens())
	}
	codes := f.sink.noticeCodes()
	if len(codes) != 1 || codes[0] != capture.NoticeMissingConfiguration {
		t.Errorf("notices = %v", codes)
	}
	if got := f.met.Sum(t, "voxnote.capture.notices", "code", "missing_configuration"); got != 1 {
		t.Errorf("notices{missing_configuration} = %d, want 1", got)
	}
}

func TestController_RecordUnsupported(t *testing.T) {
	t.Parallel()
	met := observetest.New(t)
	sk := newSink()
	ctrl := capture.New(
		notes.NewStore(storage.NewMem(), notes.WithMetrics(met.Metrics)),
		dictation.Unavailable{Reason: "no microphone"},
		capture.WithSink(sk),
		capture.WithMetrics(met.Metrics),
		capture.WithLanguage("en-US"),
	)

	err := ctrl.StartRecording(context.Background())
	if !errors.Is(err, dictation.ErrUnsupportedCapability) {
		t.Fatalf("StartRecording: expected ErrUnsupportedCapability, got %v", err)
	}
	if got := ctrl.View().Mode; got != capture.Onboarding {
		t.Errorf("mode = %v, want onboarding", got)
	}
	codes := sk.noticeCodes()
	if len(codes) != 1 || codes[0] != capture.NoticeUnsupportedCapability {
		t.Errorf("notices = %v", codes)
	}
}

func TestController_TranscriptReplacesDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.ctrl.SelectLanguage("en-US"); err != nil {
		t.Fatalf("SelectLanguage: %v", err)
	}
	if err := f.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if got := f.ctrl.View().Mode; got != capture.Recording {
		t.Fatalf("mode = %v, want recording", got)
	}
	if cfg := f.provider.Configs()[0]; cfg.Language != "en-US" {
		t.Errorf("stream language = %q", cfg.Language)
	}

	stream := f.provider.Last()
	stream.Emit(0, "Hello", false)
	f.sink.waitDraft(t, "Hello")
	stream.Emit(0, "Hello world", false)
	f.sink.waitDraft(t, "Hello world")

	if got := f.ctrl.View().Draft; got != "Hello world" {
		t.Fatalf("draft = %q, want %q", got, "Hello world")
	}
}

func TestController_StreamErrorDoesNotLoseNote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	if err := f.ctrl.StartRecordingIn(ctx, "pt-BR"); err != nil {
		t.Fatalf("StartRecordingIn: %v", err)
	}
	stream := f.provider.Last()
	stream.Emit(0, "Comprar pão", true)
	f.sink.waitDraft(t, "Comprar pão")
	stream.EmitError(errors.New("no speech detected"))
	stream.Emit(1, " e leite", false)
	f.sink.waitDraft(t, "Comprar pão e leite")

	if got := f.ctrl.View().Mode; got != capture.Recording {
		t.Fatalf("mode after stream error = %v, want recording", got)
	}

	f.ctrl.StopRecording()
	if stream.Stops() != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.Stops())
	}
	v := f.ctrl.View()
	if v.Mode != capture.Onboarding || v.Draft != "Comprar pão e leite" {
		t.Fatalf("after stop: mode=%v draft=%q", v.Mode, v.Draft)
	}

	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if persisted := f.reload(t); len(persisted) != 1 || persisted[0].Content != "Comprar pão e leite" {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestController_CommitWhileRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	if err := f.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	f.provider.Last().Emit(0, "draft", false)
	f.sink.waitDraft(t, "draft")

	if err := f.ctrl.Commit(context.Background()); !errors.Is(err, capture.ErrRecordingActive) {
		t.Fatalf("Commit: expected ErrRecordingActive, got %v", err)
	}
	if v := f.ctrl.View(); v.Mode != capture.Recording || v.Draft != "draft" || len(v.Notes) != 0 {
		t.Fatalf("view = %+v", v)
	}
}

func TestController_CancelWhileRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	if err := f.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	stream := f.provider.Last()
	stream.Emit(0, "never mind", false)
	f.sink.waitDraft(t, "never mind")

	f.ctrl.Cancel()
	if !stream.Stopped() {
		t.Error("stream not stopped by Cancel")
	}
	if v := f.ctrl.View(); v.Mode != capture.Onboarding || v.Draft != "" {
		t.Fatalf("view = %+v", v)
	}
}

func TestController_TypingWhileRecordingStaysRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	if err := f.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	f.ctrl.TextChanged("")
	if got := f.ctrl.View().Mode; got != capture.Recording {
		t.Fatalf("mode = %v, want recording", got)
	}
}

func TestController_RestartingRecordingStopsPreviousSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	first := f.provider.Last()
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("second StartRecording: %v", err)
	}
	second := f.provider.Last()

	if first == second {
		t.Fatal("expected a new stream")
	}
	if !first.Stopped() {
		t.Error("previous stream still running")
	}
	second.Emit(0, "fresh", false)
	f.sink.waitDraft(t, "fresh")
	if got := f.ctrl.View().Mode; got != capture.Recording {
		t.Errorf("mode = %v, want recording", got)
	}
}

func TestController_StaleSessionUpdatesAreDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	stream := f.provider.Last()
	stream.Emit(0, "kept", false)
	f.sink.waitDraft(t, "kept")
	f.ctrl.StopRecording()

	// The stopped stream can no longer deliver, and later edits stick.
	stream.Emit(0, "ghost", false)
	f.ctrl.TextChanged("kept, edited")
	time.Sleep(20 * time.Millisecond)
	if got := f.ctrl.View().Draft; got != "kept, edited" {
		t.Fatalf("draft = %q", got)
	}
}

func TestController_StartRecordingFromEditing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))

	f.ctrl.TextChanged("typed")
	err := f.ctrl.StartRecording(context.Background())
	if !errors.Is(err, capture.ErrInvalidTransition) {
		t.Fatalf("StartRecording: expected ErrInvalidTransition, got %v", err)
	}
	if f.provider.Opens() != 0 {
		t.Error("dictation started from editing")
	}
}

func TestController_DictationOpenFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, capture.WithLanguage("en-US"))
	f.provider.OpenErr = errors.New("401 unauthorized")

	if err := f.ctrl.StartRecording(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := f.ctrl.View().Mode; got != capture.Onboarding {
		t.Errorf("mode = %v, want onboarding", got)
	}
	codes := f.sink.noticeCodes()
	if len(codes) != 1 || codes[0] != capture.NoticeDictationFailed {
		t.Errorf("notices = %v", codes)
	}
}

func TestController_SelectLanguage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.ctrl.SelectLanguage("fr-FR"); !errors.Is(err, capture.ErrUnknownLanguage) {
		t.Fatalf("SelectLanguage(fr-FR): expected ErrUnknownLanguage, got %v", err)
	}
	if err := f.ctrl.SelectLanguage("pt-BR"); err != nil {
		t.Fatalf("SelectLanguage(pt-BR): %v", err)
	}
	if got := f.ctrl.View().Language; got != "pt-BR" {
		t.Errorf("Language = %q", got)
	}
	if err := f.ctrl.StartRecordingIn(context.Background(), "xx"); !errors.Is(err, capture.ErrUnknownLanguage) {
		t.Fatalf("StartRecordingIn(xx): expected ErrUnknownLanguage, got %v", err)
	}
}

func TestController_PersistenceFailureKeepsNote(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &failingKV{})

	f.ctrl.TextChanged("important")
	err := f.ctrl.Commit(context.Background())
	if !errors.Is(err, notes.ErrPersistenceFailure) {
		t.Fatalf("Commit: expected ErrPersistenceFailure, got %v", err)
	}
	v := f.ctrl.View()
	if len(v.Notes) != 1 || v.Notes[0].Content != "important" {
		t.Fatalf("in-memory note lost: %+v", v.Notes)
	}
	codes := f.sink.noticeCodes()
	if len(codes) != 1 || codes[0] != capture.NoticePersistenceFailure {
		t.Errorf("notices = %v", codes)
	}
}

func TestController_SearchAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, text := range []string{"apple pie", "banana bread"} {
		f.ctrl.TextChanged(text)
		if err := f.ctrl.Commit(ctx); err != nil {
			t.Fatalf("Commit(%q): %v", text, err)
		}
	}

	f.ctrl.SearchChanged("APP")
	v := f.ctrl.View()
	if len(v.Notes) != 1 || v.Notes[0].Content != "apple pie" {
		t.Fatalf("search APP = %+v", v.Notes)
	}
	f.sink.mu.Lock()
	visible := len(f.sink.visible)
	f.sink.mu.Unlock()
	if visible != 1 {
		t.Errorf("sink saw %d visible notes, want 1", visible)
	}

	if err := f.ctrl.DeleteNote(ctx, v.Notes[0].ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if got := f.ctrl.View().Notes; len(got) != 0 {
		t.Fatalf("search after delete = %+v", got)
	}

	f.ctrl.SearchChanged("")
	if got := f.ctrl.View().Notes; len(got) != 1 || got[0].Content != "banana bread" {
		t.Fatalf("all notes = %+v", got)
	}
	if persisted := f.reload(t); len(persisted) != 1 {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestController_LoadFallsBackOnCorruptStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMem()
	_ = kv.Set(ctx, notes.DefaultKey, []byte("not json"))
	f := newFixture(t, kv)

	f.ctrl.Load(ctx)
	if got := f.ctrl.View().Notes; len(got) != 0 {
		t.Fatalf("notes = %+v, want empty", got)
	}

	// The next write replaces the corrupt value.
	f.ctrl.TextChanged("fresh start")
	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if persisted := f.reload(t); len(persisted) != 1 {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestController_LoadExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMem()
	_ = kv.Set(ctx, notes.DefaultKey, []byte(`[{"id":"x","createdAt":"2026-01-01T00:00:00Z","content":"old"}]`))
	f := newFixture(t, kv)

	f.ctrl.Load(ctx)
	f.ctrl.TextChanged("new")
	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got := f.ctrl.View().Notes
	if len(got) != 2 || got[0].Content != "new" || got[1].ID != "x" {
		t.Fatalf("notes = %+v", got)
	}
}

func TestController_NotesIgnoresQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, text := range []string{"apples", "pears"} {
		f.ctrl.TextChanged(text)
		if err := f.ctrl.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	f.ctrl.SearchChanged("pear")

	if got := len(f.ctrl.View().Notes); got != 1 {
		t.Errorf("visible notes = %d, want 1", got)
	}
	all := f.ctrl.Notes()
	if len(all) != 2 || all[0].Content != "pears" {
		t.Errorf("Notes() = %+v", all)
	}
}

func TestMode_String(t *testing.T) {
	t.Parallel()
	tests := map[capture.Mode]string{
		capture.Onboarding: "onboarding",
		capture.Editing:    "editing",
		capture.Recording:  "recording",
		capture.Mode(42):   "unknown",
	}
	for m, want := range tests {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(m), got, want)
		}
	}
}

func TestController_ReloadKeepsNotesOnCorruptStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMem()
	f := newFixture(t, kv)

	for _, text := range []string{"one", "two", "three"} {
		f.ctrl.TextChanged(text)
		if err := f.ctrl.Commit(ctx); err != nil {
			t.Fatalf("Commit(%s): %v", text, err)
		}
	}
	_ = kv.Set(ctx, notes.DefaultKey, []byte("{half a write"))

	if err := f.ctrl.Reload(ctx); !errors.Is(err, notes.ErrCorruptStorage) {
		t.Fatalf("Reload: expected ErrCorruptStorage, got %v", err)
	}
	if got := len(f.ctrl.Notes()); got != 3 {
		t.Fatalf("notes after failed reload = %d, want 3", got)
	}

	f.ctrl.TextChanged("four")
	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit(four): %v", err)
	}
	if got := len(f.ctrl.Notes()); got != 4 {
		t.Errorf("notes in memory = %d, want 4", got)
	}
	persisted := f.reload(t)
	if len(persisted) != 4 || persisted[0].Content != "four" || persisted[3].Content != "one" {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestController_ReloadPicksUpExternalChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMem()
	f := newFixture(t, kv)

	f.ctrl.TextChanged("local")
	if err := f.ctrl.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = kv.Set(ctx, notes.DefaultKey, []byte(`[{"id":"x","createdAt":"2026-01-01T00:00:00Z","content":"from elsewhere"}]`))

	if err := f.ctrl.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got := f.ctrl.Notes()
	if len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("notes = %+v", got)
	}
}

// openBlocked starts recording against a provider whose Open waits on a gate
// and returns once the open is in flight.
func openBlocked(t *testing.T, f *fixture) (release func(), done <-chan error) {
	t.Helper()
	gate := make(chan struct{})
	f.provider.Block = gate
	errc := make(chan error, 1)
	go func() { errc <- f.ctrl.StartRecordingIn(context.Background(), "en-US") }()

	deadline := time.After(2 * time.Second)
	for len(f.provider.Configs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Open")
		case <-time.After(time.Millisecond):
		}
	}
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release, errc
}

func TestController_ViewNotBlockedWhileStreamOpens(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	release, done := openBlocked(t, f)

	views := make(chan capture.View, 1)
	go func() { views <- f.ctrl.View() }()
	select {
	case v := <-views:
		if v.Mode != capture.Onboarding {
			t.Errorf("mode while opening = %v, want onboarding", v.Mode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("View blocked while the stream was opening")
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StartRecordingIn: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for StartRecordingIn")
	}
	if got := f.ctrl.View().Mode; got != capture.Recording {
		t.Errorf("mode = %v, want recording", got)
	}
}

func TestController_TypingWhileStreamOpensWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	release, done := openBlocked(t, f)

	f.ctrl.TextChanged("typed instead")
	release()

	select {
	case err := <-done:
		if !errors.Is(err, capture.ErrInvalidTransition) {
			t.Fatalf("StartRecordingIn: expected ErrInvalidTransition, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for StartRecordingIn")
	}
	v := f.ctrl.View()
	if v.Mode != capture.Editing || v.Draft != "typed instead" {
		t.Errorf("view = %+v", v)
	}
	if s := f.provider.Last(); s == nil || s.Stops() != 1 {
		t.Error("superseded stream was not stopped")
	}
}
