package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"wordloom/internal/logging"
)

// Watcher reloads the config file on change and notifies subscribers with
// the freshly parsed config. Only tunables should be consumed from reloads;
// wiring-level settings (store path, provider) need a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	subs []func(*Config)
	done chan struct{}
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	w := &Watcher{path: path, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

// Subscribe registers a callback invoked with each successfully reloaded config.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logging.Boot("config reload failed: %v", err)
				continue
			}
			logging.Boot("config reloaded from %s", w.path)
			w.mu.Lock()
			subs := slices.Clone(w.subs)
			w.mu.Unlock()
			for _, fn := range subs {
				fn(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Boot("config watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
