package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxnote/internal/observe"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

// ErrAlreadyStarted is returned by [Session.Start] on a session that was
// already started. Sessions are single-use.
var ErrAlreadyStarted = errors.New("dictation: session already started")

// SessionOption is a functional option for [NewSession].
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics the session records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// OnTranscript receives the full cumulative transcript after every result
// update.
type OnTranscript func(transcript string)

// OnError receives non-fatal stream errors, wrapped in [ErrStream].
type OnError func(err error)

// Session runs a single transcription stream bound to one language.
//
// The transcript is derived from the stream's result list: the first
// alternative of every result, concatenated in list order. An update for an
// existing index replaces that result; nothing is deduplicated beyond what
// the stream itself replaces.
//
// Callbacks are invoked from a single goroutine owned by the session, in the
// order the stream produced the events, and never after Stop has returned.
type Session struct {
	provider     Provider
	onTranscript OnTranscript
	onError      OnError
	logger       *slog.Logger
	metrics      *observe.Metrics

	mu       sync.Mutex
	language string
	stream   Stream
	cancel   context.CancelFunc
	results  []stt.Result
	started  bool
	stopped  bool
	done     chan struct{}

	// cbMu is held while a callback runs so Stop can wait out an in-flight
	// delivery.
	cbMu sync.Mutex
}

// NewSession returns an idle session. Either callback may be nil.
func NewSession(p Provider, onTranscript OnTranscript, onError OnError, opts ...SessionOption) *Session {
	s := &Session{
		provider:     p,
		onTranscript: onTranscript,
		onError:      onError,
		logger:       slog.Default(),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start requests a continuous, interim-result stream for language. It fails
// with [ErrUnsupportedCapability] without starting anything when the
// provider is unavailable.
//
// The stream outlives ctx's cancellation; only [Session.Stop] ends it.
func (s *Session) Start(ctx context.Context, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	ctx, span := observe.StartSpan(ctx, "dictation.start")
	defer span.End()
	span.SetAttributes(attribute.String("dictation.language", language))

	if !s.provider.Supported() {
		s.metrics.RecordDictationSession(ctx, "unsupported")
		span.SetStatus(codes.Error, "unsupported")
		_, err := s.provider.Open(ctx, stt.StreamConfig{})
		if err == nil || !errors.Is(err, ErrUnsupportedCapability) {
			err = ErrUnsupportedCapability
		}
		return err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.provider.Open(streamCtx, stt.StreamConfig{
		Language:        language,
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 1,
	})
	if err != nil {
		cancel()
		s.metrics.RecordDictationSession(ctx, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return fmt.Errorf("dictation: start: %w", err)
	}

	s.started = true
	s.language = language
	s.stream = stream
	s.cancel = cancel
	s.metrics.RecordDictationSession(ctx, "started")
	s.metrics.ActiveDictations.Add(ctx, 1)
	observe.Logger(ctx).Info("dictation started", "language", language)

	go s.consume(streamCtx, stream)
	return nil
}

// Stop ends the stream. It is a no-op on a session that was never started or
// is already stopped. No callback runs after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stream, cancel := s.stream, s.cancel
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		s.logger.Warn("dictation: stop stream", "language", s.language, "err", err)
	}
	cancel()

	// Wait for an in-flight callback; later deliveries see stopped.
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
}

// Done is closed once the stream has ended and the session has delivered its
// last callback. It never closes for a session that was not started.
func (s *Session) Done() <-chan struct{} { return s.done }

// Language returns the language the session was started with.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Transcript returns the current cumulative transcript.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Session) transcriptLocked() string {
	var b strings.Builder
	for _, r := range s.results {
		b.WriteString(r.Transcript())
	}
	return b.String()
}

func (s *Session) consume(ctx context.Context, stream Stream) {
	defer close(s.done)
	defer s.metrics.ActiveDictations.Add(context.WithoutCancel(ctx), -1)

	results, errs := stream.Results(), stream.Errors()
	for results != nil || errs != nil {
		select {
		case ev, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			s.applyResult(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.applyError(ctx, err)
		}
	}
}

func (s *Session) applyResult(ctx context.Context, ev stt.ResultEvent) {
	if ev.Index < 0 {
		return
	}
	s.mu.Lock()
	for len(s.results) <= ev.Index {
		s.results = append(s.results, stt.Result{})
	}
	s.results[ev.Index] = ev.Result
	text := s.transcriptLocked()
	s.mu.Unlock()

	s.metrics.TranscriptUpdates.Add(ctx, 1)
	s.deliver(func() {
		if s.onTranscript != nil {
			s.onTranscript(text)
		}
	})
}

func (s *Session) applyError(ctx context.Context, err error) {
	s.metrics.StreamErrors.Add(ctx, 1)
	observe.Logger(ctx).Warn("dictation: stream error", "language", s.Language(), "err", err)
	wrapped := fmt.Errorf("%w: %w", ErrStream, err)
	s.deliver(func() {
		if s.onError != nil {
			s.onError(wrapped)
		}
	})
}

// deliver runs fn unless the session has been stopped.
func (s *Session) deliver(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	fn()
}
