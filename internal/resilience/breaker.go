// Package resilience keeps dictation usable when a speech-to-text backend
// misbehaves. A [Breaker] stops calling a backend after repeated failures and
// lets a probe through once a cooldown has passed; [STTFailover] tries
// backends in order and skips those whose breaker is open.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown has passed.
	Open

	// HalfOpen lets a limited number of probe calls through. A successful
	// probe closes the breaker; a failed one opens it again.
	HalfOpen
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs of a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of concurrent calls allowed while half-open.
	// Default: 1.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	return c
}

// StateHook observes breaker transitions. It runs after the breaker's lock is
// released.
type StateHook func(name string, from, to State)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn StateHook) BreakerOption {
	return func(b *Breaker) { b.hook = fn }
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time
	hook StateHook

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
}

// NewBreaker returns a closed breaker. Zero config fields take their defaults.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the label the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the breaker is open. Context cancellation errors returned
// by fn are passed through without counting as failures: they say nothing
// about the backend.
func (b *Breaker) Do(fn func() error) error {
	from, to, err := b.admit()
	b.notify(from, to)
	if err != nil {
		return err
	}

	err = fn()

	from, to = b.record(err)
	b.notify(from, to)
	return err
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [HalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cooledDown() {
		return HalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.probing = Closed, 0, 0
	b.mu.Unlock()
	b.notify(from, Closed)
}

func (b *Breaker) admit() (from, to State, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = b.state

	if b.state == Open {
		if !b.cooledDown() {
			return from, from, ErrOpen
		}
		b.state, b.probing = HalfOpen, 0
	}
	if b.state == HalfOpen {
		if b.probing >= b.cfg.Probes {
			return from, b.state, ErrOpen
		}
		b.probing++
	}
	return from, b.state, nil
}

func (b *Breaker) record(err error) (from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = b.state

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		if b.state == HalfOpen {
			b.probing--
		}
	case err == nil:
		b.state, b.failures, b.probing = Closed, 0, 0
	case b.state == HalfOpen:
		b.state, b.openedAt, b.probing = Open, b.now(), 0
	default:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.state, b.openedAt = Open, b.now()
		}
	}
	return from, b.state
}

func (b *Breaker) cooledDown() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.hook != nil {
		b.hook(b.name, from, to)
	}
}
