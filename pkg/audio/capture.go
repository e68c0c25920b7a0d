// Package audio defines the microphone capture abstraction used by dictation.
//
// A [Capture] starts a [Session] that yields raw 16-bit little-endian PCM
// audio through io.Reader. Implementations live in sub-packages (e.g.,
// audio/ffmpeg); tests use audio/mock.
package audio

import (
	"context"
	"io"
)

// Config describes how the microphone should be captured.
type Config struct {
	// SampleRate in Hz. Defaults to 16000 when zero.
	SampleRate int

	// Channels: 1 for mono. Defaults to 1 when zero.
	Channels int

	// InputFormat is the capture backend understood by the implementation
	// (e.g., "pulse", "alsa", "avfoundation").
	InputFormat string

	// InputDevice names the device within InputFormat (e.g., "default").
	InputDevice string
}

// Session is a live capture session. Read returns PCM bytes until Stop is
// called or the capture ends.
type Session interface {
	io.ReadCloser

	// Stop ends the capture. Calling Stop more than once is safe.
	Stop() error
}

// Capture creates microphone capture sessions.
type Capture interface {
	Start(ctx context.Context, cfg Config) (Session, error)
}
