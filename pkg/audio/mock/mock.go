// Package mock provides in-memory implementations of [audio.Capture] and
// [audio.Session] for use in unit tests.
//
// A Session behaves like a live microphone: Read blocks until the test feeds
// bytes with Feed, and returns io.EOF once Stop has been called.
//
//	sess := mock.NewSession()
//	capture := &mock.Capture{Session: sess}
//	go sess.Feed([]byte{0, 1, 2, 3})
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/voxnote/pkg/audio"
)

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// Session is returned by Start. When nil, Start returns a fresh Session.
	Session *Session

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls records the Config of every Start call.
	StartCalls []audio.Config
}

// Start records the call and returns Session, StartErr.
func (c *Capture) Start(_ context.Context, cfg audio.Config) (audio.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls = append(c.StartCalls, cfg)
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	if c.Session == nil {
		return NewSession(), nil
	}
	return c.Session, nil
}

// Starts returns the number of Start calls. Thread-safe.
func (c *Capture) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StartCalls)
}

var _ audio.Capture = (*Capture)(nil)

// Session is a mock implementation of [audio.Session] backed by an io.Pipe.
type Session struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu        sync.Mutex
	stopCount int
}

// NewSession returns a ready-to-use Session.
func NewSession() *Session {
	r, w := io.Pipe()
	return &Session{r: r, w: w}
}

// Feed makes p available to Read. It blocks until the bytes are consumed or
// the session is stopped.
func (s *Session) Feed(p []byte) error {
	_, err := s.w.Write(p)
	return err
}

// Fail makes the next Read return err.
func (s *Session) Fail(err error) {
	_ = s.w.CloseWithError(err)
}

// Read implements io.Reader.
func (s *Session) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close is an alias for Stop.
func (s *Session) Close() error { return s.Stop() }

// Stop ends the session; subsequent reads return io.EOF.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopCount++
	s.mu.Unlock()
	_ = s.w.Close()
	return nil
}

// Stops returns the number of Stop calls. Thread-safe.
func (s *Session) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

var _ audio.Session = (*Session)(nil)
