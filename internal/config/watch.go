package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay coalesces the burst of events an editor save produces.
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// new config to a callback. Invalid files are logged and skipped.
//
// The parent directory is watched rather than the file itself, since
// editors and `tickit-sync token` replace the file instead of writing in place.
type Watcher struct {
	path     string
	delay    time.Duration
	onReload func(*Config)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for the config file at path.
// It must be started with Start before it reloads anything.
func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	if onReload == nil {
		return nil, errors.New("config watcher: reload callback is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		delay:    DefaultReloadDelay,
		onReload: onReload,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The config file's directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("config watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watching config file", "path", w.path)
	return nil
}

// Stop stops watching and blocks until the event loop exits.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Shutdown implements do.Shutdowner.
func (w *Watcher) Shutdown() error {
	return w.Stop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded config is invalid, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.logger.Info("config reloaded", "path", w.path, "tokens", len(cfg.Tokens))
	w.onReload(cfg)
}
