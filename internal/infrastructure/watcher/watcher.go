// Package watcher reports changes under a directory using fsnotify.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"filedrop/internal/logging"
)

// Event kinds.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
	EventRename = "rename"
	EventChmod  = "chmod"
)

const defaultDebounce = 250 * time.Millisecond

// Handler receives the last event of a burst and the time it was observed.
type Handler func(kind, path string, observedAt time.Time)

// Watcher watches one directory and calls its handler after each burst of
// changes settles for the debounce window.
type Watcher struct {
	root     string
	debounce time.Duration
	handler  Handler

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	timer    *time.Timer
	lastKind string
	lastPath string
	lastAt   time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New creates a watcher for root. A non-positive debounce selects the default.
func New(root string, debounce time.Duration, handler Handler) (*Watcher, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("watch root required")
	}
	if handler == nil {
		return nil, errors.New("watch handler required")
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		handler:  handler,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers the directory with fsnotify and begins dispatching events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fs != nil {
		w.mu.Unlock()
		return nil
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsWatcher.Add(w.root); err != nil {
		_ = fsWatcher.Close()
		w.mu.Unlock()
		return err
	}
	w.fs = fsWatcher
	w.mu.Unlock()

	logging.Info("watching directory", zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	go w.loop(fsWatcher)
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopCh:
		}
	}()
	return nil
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.fs != nil {
			_ = w.fs.Close()
		}
		w.mu.Unlock()
	})
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) loop(fsWatcher *fsnotify.Watcher) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("directory watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	kind := eventKind(event.Op)
	if kind == "" || event.Name == "" {
		return
	}
	logging.Debug("file event", zap.String("event", kind), zap.String("path", event.Name))
	w.schedule(kind, event.Name)
}

func (w *Watcher) schedule(kind, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastKind, w.lastPath, w.lastAt = kind, path, time.Now()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	w.mu.Lock()
	kind, path, at := w.lastKind, w.lastPath, w.lastAt
	w.timer = nil
	w.mu.Unlock()
	w.handler(kind, path, at)
}

func eventKind(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate
	case op.Has(fsnotify.Write):
		return EventModify
	case op.Has(fsnotify.Remove):
		return EventDelete
	case op.Has(fsnotify.Rename):
		return EventRename
	case op.Has(fsnotify.Chmod):
		return EventChmod
	}
	return ""
}
