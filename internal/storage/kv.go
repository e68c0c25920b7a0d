// Package storage defines the durable key-value contract the note store
// writes through, plus an in-memory implementation.
//
// Every Set fully replaces the value under a key in one operation; readers
// observe either the previous or the new value, never a mix. Backends live in
// sub-packages: storage/filekv (one file per key) and storage/sqlitekv (a
// local SQLite database).
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// KV is a durable, single-writer key-value store.
type KV interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases any resources held by the backend.
	Close() error
}

// Compile-time assertion that Mem satisfies the KV interface.
var _ KV = (*Mem)(nil)

// Mem is a thread-safe, in-memory implementation of [KV]. It does not survive
// a restart and is meant for tests and ephemeral sessions.
// The zero value is ready to use.
type Mem struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMem returns an initialised [Mem].
func NewMem() *Mem {
	return &Mem{values: make(map[string][]byte)}
}

// Get implements [KV.Get].
func (m *Mem) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements [KV.Set].
func (m *Mem) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Close implements [KV.Close]. It is a no-op.
func (m *Mem) Close() error { return nil }
