package capture

import "github.com/MrWong99/voxnote/internal/notes"

// Mode is the capture state.
type Mode int

// Capture modes.
const (
	// Onboarding shows the prompt; the draft may still hold text retained
	// from a stopped dictation.
	Onboarding Mode = iota

	// Editing is free-text entry.
	Editing

	// Recording means a dictation session is active and owns the draft.
	Recording
)

// String returns the lower-case name of the mode.
func (m Mode) String() string {
	switch m {
	case Onboarding:
		return "onboarding"
	case Editing:
		return "editing"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// NoticeCode identifies a user-facing notice.
type NoticeCode string

// Notice codes.
const (
	NoticeNoteSaved             NoticeCode = "note_saved"
	NoticeUnsupportedCapability NoticeCode = "unsupported_capability"
	NoticeMissingConfiguration  NoticeCode = "missing_configuration"
	NoticeDictationFailed       NoticeCode = "dictation_failed"
	NoticePersistenceFailure    NoticeCode = "persistence_failure"
)

// Notice is a message for the user. Err is set for failures.
type Notice struct {
	Code    NoticeCode
	Message string
	Err     error
}

// EventSink receives state changes from a [Controller].
//
// Methods are called synchronously while the controller processes an event,
// so they see changes in order. They must not call back into the controller.
type EventSink interface {
	ModeChanged(mode Mode)
	DraftChanged(draft string)
	// NotesChanged receives the notes matching the current search query.
	NotesChanged(visible notes.Collection)
	Notice(n Notice)
}

// View is a snapshot of everything the presentation layer renders.
type View struct {
	Mode      Mode
	Draft     string
	Language  string
	Languages []string
	Query     string
	// Notes holds the notes matching Query, newest first.
	Notes notes.Collection
}

// nopSink discards every event.
type nopSink struct{}

func (nopSink) ModeChanged(Mode) {}
func (nopSink) DraftChanged(string) {}
func (nopSink) NotesChanged(notes.Collection) {}
func (nopSink) Notice(Notice) {}
