// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and emits a
// stream of [ResultEvent] values that describe a growing list of recognition
// results, plus a separate stream of non-fatal errors.
//
// The result list follows the model of browser speech recognition: every event
// carries the index of the result it describes. An event for an index that was
// already seen replaces that result (an interim guess being refined or
// finalised); an event for the next index appends a new result.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SendAudio after the session has been closed.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition options for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US", "pt-BR").
	// An empty string lets the provider fall back to its configured default.
	Language string

	// Continuous keeps the session open across pauses in speech instead of
	// ending after the first utterance.
	Continuous bool

	// InterimResults asks the provider to emit low-latency guesses before an
	// utterance is final.
	InterimResults bool

	// MaxAlternatives caps the number of alternatives per result. Zero means 1.
	MaxAlternatives int
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do so
// may leak goroutines and network connections inside the provider implementation.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. Calling SendAudio after Close returns [ErrSessionClosed].
	SendAudio(chunk []byte) error

	// Results returns a read-only channel of recognition results in the order
	// the provider produced them. The channel is closed when the session ends.
	Results() <-chan ResultEvent

	// Errors returns a read-only channel of errors reported by the provider
	// while the session keeps running. The channel is closed when the session
	// ends.
	Errors() <-chan error

	// Close terminates the session and releases all associated resources.
	// After Close returns, the Results and Errors channels will be closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given audio
	// format and recognition configuration. The returned SessionHandle is ready to
	// accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
