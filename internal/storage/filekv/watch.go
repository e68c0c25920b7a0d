package filekv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events a single save produces.
const watchDebounce = 50 * time.Millisecond

// Watch calls onChange whenever another writer replaces the value stored
// under key. Changes made through this Store are not reported. Watch blocks
// until ctx is cancelled and returns nil in that case.
//
// onChange runs on a timer goroutine, one call at a time.
func (s *Store) Watch(ctx context.Context, key string, onChange func()) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filekv: create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: atomic replacements swap the file's inode.
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("filekv: watch %q: %w", s.dir, err)
	}

	fire := make(chan struct{}, 1)
	timer := time.AfterFunc(time.Hour, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("filekv: watcher error", "dir", s.dir, "err", err)
		case <-fire:
			if s.changedExternally(key, path) {
				onChange()
			}
		}
	}
}

// changedExternally reads the file and reports whether it differs from the
// last value this store saw. A differing value becomes the new baseline.
func (s *Store) changedExternally(key, path string) bool {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		slog.Warn("filekv: read after change", "key", key, "err", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.seen[key]; ok && bytes.Equal(prev, data) {
		return false
	}
	s.seen[key] = data
	return true
}
