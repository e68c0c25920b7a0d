// Package ffmpeg captures microphone audio by running ffmpeg and reading raw
// PCM from its stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxnote/pkg/audio"
)

const (
	defaultCommand = "ffmpeg"

	// startupWindow is how long Start waits for ffmpeg to fail fast (missing
	// device, bad input format) before treating the capture as running.
	startupWindow = 250 * time.Millisecond

	// stopTimeout is how long Stop waits after an interrupt before killing
	// the process.
	stopTimeout = 1200 * time.Millisecond
)

// Compile-time assertion that Capture implements audio.Capture.
var _ audio.Capture = (*Capture)(nil)

// Capture streams microphone PCM audio using ffmpeg.
type Capture struct {
	command string
}

// New returns a Capture that runs command (defaults to "ffmpeg").
func New(command string) *Capture {
	if command == "" {
		command = defaultCommand
	}
	return &Capture{command: command}
}

// Probe reports whether the capture command can be found on PATH.
func (c *Capture) Probe() error {
	if _, err := exec.LookPath(c.command); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// Start launches ffmpeg for the configured input and returns a session whose
// Read yields s16le PCM.
func (c *Capture) Start(ctx context.Context, cfg audio.Config) (audio.Session, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg: exited before capture started")
	case <-time.After(startupWindow):
	}

	return &session{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type session struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *session) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *session) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg, escalating to kill after stopTimeout.
func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// normalizeStopErr drops the exit status ffmpeg reports after being
// interrupted; only failures to reap the process are interesting.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
