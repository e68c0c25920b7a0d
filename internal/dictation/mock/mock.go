// Package mock provides a scriptable [dictation.Provider] for tests of code
// that drives dictation sessions.
//
// Every successful Open returns a new Stream; tests fetch it with Last and
// push result events and errors into it.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxnote/internal/dictation"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

// Provider is a mock implementation of [dictation.Provider].
type Provider struct {
	mu sync.Mutex

	// Unsupported makes the provider behave like [dictation.Unavailable].
	Unsupported bool

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// Block, if non-nil, makes Open wait until it is closed or the context
	// ends. The config is recorded before waiting.
	Block chan struct{}

	configs []stt.StreamConfig
	streams []*Stream
}

// Supported implements [dictation.Provider].
func (p *Provider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Unsupported
}

// Status implements [dictation.Provider].
func (p *Provider) Status() string {
	if !p.Supported() {
		return "unavailable: mock"
	}
	return "available"
}

// Open records cfg and returns a fresh Stream.
func (p *Provider) Open(ctx context.Context, cfg stt.StreamConfig) (dictation.Stream, error) {
	p.mu.Lock()
	p.configs = append(p.configs, cfg)
	block := p.Block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unsupported {
		return nil, dictation.ErrUnsupportedCapability
	}
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	s := NewStream()
	p.streams = append(p.streams, s)
	return s, nil
}

// Opens returns the number of streams successfully opened.
func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

// Configs returns a copy of every StreamConfig passed to Open.
func (p *Provider) Configs() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.StreamConfig(nil), p.configs...)
}

// Last returns the most recently opened stream, or nil.
func (p *Provider) Last() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

var _ dictation.Provider = (*Provider)(nil)

// Stream is a mock implementation of [dictation.Stream].
type Stream struct {
	mu      sync.Mutex
	results chan stt.ResultEvent
	errs    chan error
	stops   int
	stopped bool
}

// NewStream returns a stream with buffered channels.
func NewStream() *Stream {
	return &Stream{
		results: make(chan stt.ResultEvent, 64),
		errs:    make(chan error, 64),
	}
}

// Results implements [dictation.Stream].
func (s *Stream) Results() <-chan stt.ResultEvent { return s.results }

// Errors implements [dictation.Stream].
func (s *Stream) Errors() <-chan error { return s.errs }

// Emit pushes a single-alternative result at index. No-op after Stop.
func (s *Stream) Emit(index int, transcript string, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.results <- stt.ResultEvent{
		Index: index,
		Result: stt.Result{
			IsFinal:      final,
			Alternatives: []stt.Alternative{{Transcript: transcript}},
		},
	}
}

// EmitError pushes a stream error. No-op after Stop.
func (s *Stream) EmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.errs <- err
}

// End closes the output channels as if the backend ended the stream.
func (s *Stream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.results)
		close(s.errs)
	}
}

// Stop implements [dictation.Stream].
func (s *Stream) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.End()
	return nil
}

// Stops returns the number of Stop calls.
func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Stopped reports whether the stream has ended.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

var _ dictation.Stream = (*Stream)(nil)
