package ruleset

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Logger is the logging surface the watcher needs.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Watch enables caching and drops the cached rule set whenever the store
// file changes on disk. The parent directory is watched because atomic
// writes replace the file by rename.
func (s *Store) Watch(logger Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch rule store: %w", err)
	}

	s.EnableCache()
	done := make(chan struct{})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					s.Invalidate()
					logger.Infof("rule store change detected: %s", ev.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.Invalidate()
				logger.Errorf("rule store watcher error: %v", err)
			}
		}
	}()

	return func() { close(done) }, nil
}
