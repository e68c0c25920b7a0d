package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxnote/pkg/provider/stt"
)

// ErrAllFailed is returned when no backend could open a stream.
var ErrAllFailed = errors.New("resilience: all speech-to-text backends failed")

// Compile-time assertion that STTFailover satisfies stt.Provider.
var _ stt.Provider = (*STTFailover)(nil)

// Backend is a named speech-to-text provider.
type Backend struct {
	Name     string
	Provider stt.Provider
}

type guarded struct {
	provider stt.Provider
	breaker  *Breaker
}

// STTFailover is an [stt.Provider] that opens streams on the first backend
// that accepts them, in registration order. Each backend has its own
// [Breaker]; backends whose breaker is open are skipped.
//
// Failover only covers opening a stream. Errors on an established stream are
// the caller's concern.
type STTFailover struct {
	backends []guarded
}

// NewSTTFailover returns a failover over backends, tried in the given order.
// opts apply to every backend's breaker.
func NewSTTFailover(cfg BreakerConfig, backends []Backend, opts ...BreakerOption) (*STTFailover, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: at least one backend is required")
	}
	f := &STTFailover{backends: make([]guarded, 0, len(backends))}
	for _, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("resilience: backend %q has no provider", b.Name)
		}
		f.backends = append(f.backends, guarded{
			provider: b.Provider,
			breaker:  NewBreaker(b.Name, cfg, opts...),
		})
	}
	return f, nil
}

// StartStream implements [stt.Provider].
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var errs []error
	for _, g := range f.backends {
		var handle stt.SessionHandle
		err := g.breaker.Do(func() error {
			var err error
			handle, err = g.provider.StartStream(ctx, cfg)
			return err
		})
		if err == nil {
			slog.Debug("resilience: stream opened", "backend", g.breaker.Name())
			return handle, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, ErrOpen) {
			slog.Warn("resilience: backend failed, trying next", "backend", g.breaker.Name(), "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", g.breaker.Name(), err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// States reports the breaker state of every backend, keyed by name.
func (f *STTFailover) States() map[string]State {
	out := make(map[string]State, len(f.backends))
	for _, g := range f.backends {
		out[g.breaker.Name()] = g.breaker.State()
	}
	return out
}

// Available reports whether at least one backend would currently be tried.
func (f *STTFailover) Available() bool {
	for _, g := range f.backends {
		if g.breaker.State() != Open {
			return true
		}
	}
	return false
}
