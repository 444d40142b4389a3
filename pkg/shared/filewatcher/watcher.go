// Package filewatcher reports changes to a single file, coalescing bursts of
// writes into one notification.
package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent describes one (debounced) change to the watched file, or a
// watcher error when Error is set.
type ChangeEvent struct {
	Path      string
	Timestamp time.Time
	Error     error
}

// ChangeListener receives change notifications.
type ChangeListener interface {
	OnFileChange(event ChangeEvent)
}

// ListenerFunc adapts a function to ChangeListener.
type ListenerFunc func(event ChangeEvent)

func (f ListenerFunc) OnFileChange(event ChangeEvent) { f(event) }

// Watcher watches one file. It subscribes to the file's directory so that
// editors and config management tools that save by renaming a temporary file
// over the original are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	listeners []ChangeListener
}

// NewWatcher watches path and waits debounce after the last write before notifying.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{fs: fs, path: abs, debounce: debounce}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// AddListener registers l. Listeners are called one at a time, in order.
func (w *Watcher) AddListener(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Start delivers notifications until ctx is done or the watcher is closed.
// It blocks; run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time // nil until a change is pending
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("filewatcher: event channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil
			w.notify(ChangeEvent{Path: w.path, Timestamp: time.Now()})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("filewatcher: error channel closed")
			}
			w.notify(ChangeEvent{Path: w.path, Timestamp: time.Now(), Error: err})
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) notify(ev ChangeEvent) {
	w.mu.RLock()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()

	for _, l := range listeners {
		l.OnFileChange(ev)
	}
}

// Close stops watching. A running Start returns shortly after.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
