package composition

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/slighter12/ae-bridge-go/logger"
)

// Source hands out the currently active composition. Callers fetch it on
// every host call and must not keep the result across calls.
type Source interface {
	Active() (*Composition, error)
}

// StaticSource always returns the same composition; nil means none is open.
type StaticSource struct {
	Comp *Composition
}

func (s StaticSource) Active() (*Composition, error) {
	if s.Comp == nil {
		return nil, ErrNoActiveComposition
	}
	return s.Comp, nil
}

// FileSource serves a composition loaded from a YAML fixture and reloads it
// when the file changes.
type FileSource struct {
	path string

	mu   sync.RWMutex
	comp *Composition
	err  error
}

// NewFileSource loads path once. A load failure is kept and reported by
// Active until a later reload succeeds.
func NewFileSource(path string) *FileSource {
	s := &FileSource{path: path}
	s.Reload()
	return s
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Active() (*Composition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.comp == nil {
		if s.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoActiveComposition, s.err)
		}
		return nil, ErrNoActiveComposition
	}
	return s.comp, nil
}

// Reload re-reads the fixture. On failure the previous composition stays
// active.
func (s *FileSource) Reload() error {
	comp, err := Load(s.path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.comp == nil {
			s.err = err
		}
		return err
	}
	s.comp = comp
	s.err = nil
	return nil
}

// Watch reloads the fixture on write, create and rename events until ctx is
// done. The parent directory is watched because editors often replace the
// file instead of writing it in place. onReload, when set, runs after each
// reload attempt.
func (s *FileSource) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fixture watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)
	logger.Info("Watching composition fixture", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			reloadErr := s.Reload()
			if reloadErr != nil {
				logger.Warn("Composition fixture reload failed", "path", target, "error", reloadErr)
			} else {
				logger.Info("Composition fixture reloaded", "path", target)
			}
			if onReload != nil {
				onReload(reloadErr)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Composition fixture watcher error", "error", watchErr)
		}
	}
}
