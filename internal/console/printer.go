package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voxnote/internal/capture"
	"github.com/MrWong99/voxnote/internal/notes"
)

// Compile-time assertion that Printer satisfies capture.EventSink.
var _ capture.EventSink = (*Printer)(nil)

// styles are resolved against the output's colour profile, so writing to a
// pipe or buffer yields plain text.
type styles struct {
	mode    lipgloss.Style
	live    lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	failure lipgloss.Style
	id      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		mode:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		live:    r.NewStyle().Foreground(lipgloss.Color("205")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("242")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		id:      r.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// Printer renders controller events as lines of text. It is the
// [capture.EventSink] of the interactive console.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	st      styles
	mode    capture.Mode
	notices int
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, st: newStyles(lipgloss.NewRenderer(out))}
}

// ModeChanged implements [capture.EventSink].
func (p *Printer) ModeChanged(m capture.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
	fmt.Fprintln(p.out, p.st.mode.Render("["+m.String()+"]"))
}

// DraftChanged implements [capture.EventSink]. Only live transcripts are
// echoed; typed text is already on screen.
func (p *Printer) DraftChanged(draft string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != capture.Recording {
		return
	}
	fmt.Fprintln(p.out, p.st.live.Render("» "+draft))
}

// NotesChanged implements [capture.EventSink].
func (p *Printer) NotesChanged(visible notes.Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.st.dim.Render(fmt.Sprintf("%d note(s) shown", len(visible))))
}

// Notice implements [capture.EventSink].
func (p *Printer) Notice(n capture.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices++
	if n.Err == nil {
		fmt.Fprintln(p.out, p.st.ok.Render("✓ "+n.Message))
		return
	}
	fmt.Fprintln(p.out, p.st.failure.Render("! "+n.Message))
}

// noticeCount returns how many notices have been printed so far.
func (p *Printer) noticeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notices
}

// Errorf prints a failure line.
func (p *Printer) Errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.st.failure.Render("! "+fmt.Sprintf(format, args...)))
}

// Println prints a plain line.
func (p *Printer) Println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// printNotes prints one line per note: id, creation time and the first line
// of its content.
func (p *Printer) printNotes(col notes.Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(col) == 0 {
		fmt.Fprintln(p.out, p.st.dim.Render("no notes"))
		return
	}
	for _, n := range col {
		fmt.Fprintf(p.out, "%s  %s  %s\n",
			p.st.id.Render(n.ID),
			p.st.dim.Render(n.CreatedAt.Local().Format("2006-01-02 15:04")),
			firstLine(n.Content),
		)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " …"
		}
	}
	return s
}
