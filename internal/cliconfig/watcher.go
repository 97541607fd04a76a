package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatship-io/chatship/internal/ports"
)

// Watcher monitors the config file via fsnotify and invokes a callback with
// the freshly parsed FileConfig after each change settles.
type Watcher struct {
	path   string
	logger ports.Logger
	onLoad func(FileConfig)

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, logger ports.Logger, onLoad func(FileConfig)) *Watcher {
	return &Watcher{path: path, logger: logger, onLoad: onLoad}
}

// Run blocks watching the config file's directory until ctx is done.
// Watching the directory rather than the file survives editors that replace
// the file on save.
func (w *Watcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config watcher unavailable", ports.Err(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("config watcher failed",
			ports.String("path", w.path), ports.Err(err))
		return
	}

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) debounceReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, w.reload)
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed",
			ports.String("path", w.path), ports.Err(err))
		return
	}
	w.logger.Info("config reloaded", ports.String("path", w.path))
	w.onLoad(fc)
}
