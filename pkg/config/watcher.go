package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmrschmidt/RestSpy/pkg/logging"
)

// DefaultDebounce is how long the watcher waits after the last file
// event before firing a reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches config and double files and fires a debounced
// callback when any of them change, so a burst of editor saves
// collapses into one reload.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      *slog.Logger
	debounce *debouncer

	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the quiet interval before a reload fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = newDebouncer(d)
		}
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWatcher builds a watcher over the given files and directories.
// Directories are covered recursively; hidden subdirectories are
// skipped.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		log:      logging.Nop(),
		debounce: newDebouncer(DefaultDebounce),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range paths {
		if err := w.add(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Watch blocks processing file events until the context is cancelled
// or Stop is called. Each relevant change schedules onChange after the
// debounce interval; onChange errors are logged, never fatal, so an
// invalid edit leaves the previous state serving.
func (w *Watcher) Watch(ctx context.Context, onChange func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher is already running")
	}
	w.running = true
	doneCh := make(chan struct{})
	w.doneCh = doneCh
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(doneCh)
	}()

	w.log.Info("watching for file changes", "debounce", w.debounce.interval)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch events channel closed")
			}
			if !relevantEvent(ev) {
				continue
			}
			w.log.Debug("file changed", "path", ev.Name, "op", ev.Op.String())
			w.debounce.trigger(func() {
				if err := onChange(); err != nil {
					w.log.Error("reload failed, keeping previous state", "error", err)
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch errors channel closed")
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Stop ends the watch loop, waits for it to exit, and releases the
// underlying filesystem watcher. Safe to call more than once, and
// before Watch was ever started.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	w.mu.Lock()
	doneCh := w.doneCh
	w.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}

	w.debounce.stop()
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("closing file watcher: %w", err)
	}
	return nil
}

func (w *Watcher) add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	}

	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if p != path && strings.HasPrefix(filepath.Base(p), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// relevantEvent filters out chmod noise and files that are not YAML.
func relevantEvent(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}

// debouncer collapses bursts of triggers into one callback after a
// quiet interval.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	fn      func()
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

// trigger schedules fn after the quiet interval, replacing any pending
// callback.
func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		fn, stopped := d.fn, d.stopped
		d.mu.Unlock()
		if !stopped && fn != nil {
			fn()
		}
	})
}

// stop cancels any pending callback.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
}
