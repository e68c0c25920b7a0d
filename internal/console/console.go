// Package console is a line-oriented front end for the note capture
// controller. Lines starting with ':' are commands (":help" lists them); any
// other line is appended to the draft.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/voxnote/internal/capture"
)

const help = `commands:
  :edit           start typing a note
  :lang [tag]     list or select the dictation language
  :rec [tag]      start dictation
  :stop           stop dictation and keep the transcript
  :save           save the draft as a note
  :cancel         discard the draft
  :find [query]   filter notes; no query shows all
  :list           print the visible notes
  :rm <id>        delete a note
  :quit           leave
any other line is added to the draft`

// Console reads commands and feeds them to a [capture.Controller].
type Console struct {
	ctrl *capture.Controller
	out  *Printer
}

// New returns a Console driving ctrl. out should be the controller's sink so
// that events and command output share one stream.
func New(ctrl *capture.Controller, out *Printer) *Console {
	return &Console{ctrl: ctrl, out: out}
}

// Run processes lines from in until it is exhausted, :quit is entered or ctx
// is cancelled. It returns nil in all three cases.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.out.Println("voxnote ready, :help lists commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("console: read input: %w", err)
			}
			return nil
		case line := <-lines:
			if quit := c.Exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// Exec runs a single input line and reports whether the user asked to quit.
func (c *Console) Exec(ctx context.Context, line string) (quit bool) {
	if !strings.HasPrefix(line, ":") {
		c.appendLine(line)
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	before := c.out.noticeCount()

	var err error
	switch cmd {
	case "edit":
		c.ctrl.StartEditing()
	case "lang":
		if arg == "" {
			c.printLanguages()
			return false
		}
		err = c.ctrl.SelectLanguage(arg)
	case "rec":
		if arg == "" {
			err = c.ctrl.StartRecording(ctx)
		} else {
			err = c.ctrl.StartRecordingIn(ctx, arg)
		}
	case "stop":
		c.ctrl.StopRecording()
	case "save":
		err = c.ctrl.Commit(ctx)
	case "cancel":
		c.ctrl.Cancel()
	case "find":
		c.ctrl.SearchChanged(arg)
	case "list":
		c.out.printNotes(c.ctrl.View().Notes)
	case "rm":
		if arg == "" {
			c.out.Errorf("usage: :rm <id>")
			return false
		}
		err = c.ctrl.DeleteNote(ctx, arg)
	case "help":
		c.out.Println(help)
	case "quit", "q":
		return true
	default:
		c.out.Errorf("unknown command %q, :help lists commands", cmd)
	}

	// Failures the controller already announced are not repeated.
	if err != nil && c.out.noticeCount() == before {
		c.out.Errorf("%v", err)
	}
	return false
}

// appendLine adds a typed line to the draft.
func (c *Console) appendLine(line string) {
	draft := c.ctrl.View().Draft
	if draft != "" {
		line = draft + "\n" + line
	}
	c.ctrl.TextChanged(line)
}

func (c *Console) printLanguages() {
	v := c.ctrl.View()
	var b strings.Builder
	for _, tag := range v.Languages {
		if tag == v.Language {
			b.WriteString("* ")
		} else {
			b.WriteString("  ")
		}
		b.WriteString(tag)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		b.WriteString("no languages configured\n")
	}
	c.out.Println(strings.TrimSuffix(b.String(), "\n"))
}
