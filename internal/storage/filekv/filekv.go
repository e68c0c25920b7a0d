// Package filekv stores each key as a JSON file inside a directory. Writes go
// to a temporary file that is synced and renamed over the target, so a crash
// leaves either the old or the new value on disk.
package filekv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrWong99/voxnote/internal/storage"
)

const (
	tempFilePrefix = "voxnote-tmp-"
	fileExt        = ".json"
)

// Compile-time assertion that Store satisfies storage.KV.
var _ storage.KV = (*Store)(nil)

// Store is a directory-backed [storage.KV].
type Store struct {
	dir string

	mu sync.Mutex
	// seen holds the last value this store read or wrote per key, so
	// [Store.Watch] can tell its own writes from foreign ones.
	seen map[string][]byte
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filekv: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filekv: create %q: %w", dir, err)
	}
	return &Store{dir: dir, seen: make(map[string][]byte)}, nil
}

// Get implements [storage.KV.Get].
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filekv: read %q: %w", key, err)
	}
	s.remember(key, data)
	return data, nil
}

// Set implements [storage.KV.Set].
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, value, 0o644); err != nil {
		return fmt.Errorf("filekv: write %q: %w", key, err)
	}
	s.remember(key, value)
	return nil
}

// Close implements [storage.KV.Close]. It is a no-op.
func (s *Store) Close() error { return nil }

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

func (s *Store) remember(key string, value []byte) {
	s.mu.Lock()
	s.seen[key] = append([]byte(nil), value...)
	s.mu.Unlock()
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("filekv: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
