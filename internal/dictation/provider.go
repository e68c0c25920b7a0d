// Package dictation turns a live speech-to-text stream into a cumulative
// transcript.
//
// A [Provider] is resolved once at startup by [Probe]: either [Available],
// which couples an STT backend with a microphone capture, or [Unavailable],
// which refuses every start with [ErrUnsupportedCapability]. A [Session]
// runs one stream bound to one language and reports transcript updates and
// non-fatal stream errors through callbacks.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/voxnote/pkg/audio"
	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

// DefaultChunkSize is the number of PCM bytes forwarded per SendAudio call
// when [Available.ChunkSize] is zero. At 16 kHz mono this is 128 ms.
const DefaultChunkSize = 4096

var (
	// ErrUnsupportedCapability is returned when dictation is requested but no
	// transcription capability exists on this host.
	ErrUnsupportedCapability = errors.New("dictation: transcription capability unavailable")

	// ErrStream wraps errors reported by a running stream. They never end the
	// session.
	ErrStream = errors.New("dictation: stream error")
)

// Stream is a running transcription stream.
type Stream interface {
	// Results delivers result-list updates in production order. It is closed
	// when the stream ends.
	Results() <-chan stt.ResultEvent

	// Errors delivers non-fatal errors. It is closed when the stream ends.
	Errors() <-chan error

	// Stop ends the stream and releases its resources. Safe to call twice.
	Stop() error
}

// Provider opens transcription streams.
type Provider interface {
	// Supported reports whether Open can succeed at all.
	Supported() bool

	// Status is a short human-readable description of the capability.
	Status() string

	// Open starts a stream with cfg.
	Open(ctx context.Context, cfg stt.StreamConfig) (Stream, error)
}

// Compile-time interface assertions.
var (
	_ Provider = Available{}
	_ Provider = Unavailable{}
)

// Unavailable is the provider used when the host cannot transcribe speech.
type Unavailable struct {
	// Reason explains why dictation is unavailable.
	Reason string
}

// Supported implements [Provider]. It always returns false.
func (Unavailable) Supported() bool { return false }

// Status implements [Provider].
func (u Unavailable) Status() string {
	if u.Reason == "" {
		return "unavailable"
	}
	return "unavailable: " + u.Reason
}

// Open implements [Provider]. It always fails with [ErrUnsupportedCapability].
func (u Unavailable) Open(context.Context, stt.StreamConfig) (Stream, error) {
	if u.Reason == "" {
		return nil, ErrUnsupportedCapability
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCapability, u.Reason)
}

// Available streams microphone audio into an STT backend.
type Available struct {
	// STT is the transcription backend.
	STT stt.Provider

	// Capture records the microphone.
	Capture audio.Capture

	// Audio is the capture format. Its sample rate and channel count are also
	// passed to the STT backend.
	Audio audio.Config

	// ChunkSize is the number of bytes read from the microphone per audio
	// frame. Zero means [DefaultChunkSize].
	ChunkSize int
}

// Supported implements [Provider]. It always returns true.
func (Available) Supported() bool { return true }

// Status implements [Provider].
func (Available) Status() string { return "available" }

// Open implements [Provider]. It opens the STT session first, then starts the
// microphone and pumps audio into the session until Stop.
func (a Available) Open(ctx context.Context, cfg stt.StreamConfig) (Stream, error) {
	audioCfg := a.Audio
	if audioCfg.SampleRate == 0 {
		audioCfg.SampleRate = 16000
	}
	if audioCfg.Channels == 0 {
		audioCfg.Channels = 1
	}
	cfg.SampleRate = audioCfg.SampleRate
	cfg.Channels = audioCfg.Channels

	handle, err := a.STT.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dictation: open stt stream: %w", err)
	}
	mic, err := a.Capture.Start(ctx, audioCfg)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("dictation: start microphone: %w", err)
	}

	chunk := a.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	ls := &liveStream{
		handle: handle,
		mic:    mic,
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
	}
	ls.wg.Add(2)
	go ls.pump(chunk)
	go ls.forwardErrors()
	return ls, nil
}

// liveStream couples an STT session with a microphone session. Errors from
// both sides are merged into one channel.
type liveStream struct {
	handle stt.SessionHandle
	mic    audio.Session
	errs   chan error
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	err    error
}

func (l *liveStream) Results() <-chan stt.ResultEvent { return l.handle.Results() }

func (l *liveStream) Errors() <-chan error { return l.errs }

func (l *liveStream) Stop() error {
	l.once.Do(func() {
		close(l.done)
		micErr := l.mic.Stop()
		handleErr := l.handle.Close()
		l.wg.Wait()
		close(l.errs)
		l.err = errors.Join(micErr, handleErr)
	})
	return l.err
}

// pump reads fixed-size frames from the microphone and sends them to the STT
// session.
func (l *liveStream) pump(chunkSize int) {
	defer l.wg.Done()
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(l.mic, buf)
		if n > 0 {
			if sendErr := l.handle.SendAudio(buf[:n]); sendErr != nil {
				if errors.Is(sendErr, stt.ErrSessionClosed) {
					return
				}
				l.report(fmt.Errorf("send audio: %w", sendErr))
			}
		}
		if err != nil {
			if l.stopping() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				l.report(errors.New("microphone capture ended"))
			} else {
				l.report(fmt.Errorf("read microphone: %w", err))
			}
			return
		}
	}
}

func (l *liveStream) forwardErrors() {
	defer l.wg.Done()
	for err := range l.handle.Errors() {
		l.report(err)
	}
}

func (l *liveStream) report(err error) {
	select {
	case l.errs <- err:
	case <-l.done:
	}
}

func (l *liveStream) stopping() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Probe resolves the dictation capability once. It returns candidate when it
// has an STT backend and a microphone capture and check (if any) succeeds;
// otherwise it returns [Unavailable] with the reason.
func Probe(candidate Available, check func() error) Provider {
	switch {
	case candidate.STT == nil:
		return Unavailable{Reason: "no speech-to-text provider configured"}
	case candidate.Capture == nil:
		return Unavailable{Reason: "no microphone capture configured"}
	}
	if check != nil {
		if err := check(); err != nil {
			return Unavailable{Reason: fmt.Sprintf("microphone capture not usable: %v", err)}
		}
	}
	return candidate
}
