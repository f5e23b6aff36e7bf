package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches configuration files for changes
type Watcher interface {
	Watch(path string) error
	Unwatch(path string) error
	Events() <-chan WatchEvent
	Close() error
}

// WatchEvent represents a config file change
type WatchEvent struct {
	Path      string
	Operation string // "modified", "created", "deleted"
}

// FsnotifyWatcher implements Watcher using fsnotify
type FsnotifyWatcher struct {
	watcher  *fsnotify.Watcher
	events   chan WatchEvent
	done     chan struct{}
	mu       sync.Mutex
	watching map[string]bool
}

// NewFsnotifyWatcher creates a new fsnotify-based config watcher
func NewFsnotifyWatcher() (*FsnotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &FsnotifyWatcher{
		watcher:  watcher,
		events:   make(chan WatchEvent, 10),
		done:     make(chan struct{}),
		watching: make(map[string]bool),
	}

	go w.processEvents()

	return w, nil
}

// Watch starts watching a configuration file
func (w *FsnotifyWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if w.watching[absPath] {
		return nil
	}
	if err := w.watcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}
	w.watching[absPath] = true
	return nil
}

// Unwatch stops watching a configuration file
func (w *FsnotifyWatcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !w.watching[absPath] {
		return nil
	}
	if err := w.watcher.Remove(absPath); err != nil {
		return fmt.Errorf("failed to unwatch %s: %w", absPath, err)
	}
	delete(w.watching, absPath)
	return nil
}

// Events returns the channel of watch events
func (w *FsnotifyWatcher) Events() <-chan WatchEvent {
	return w.events
}

// Close stops the watcher and releases resources
func (w *FsnotifyWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *FsnotifyWatcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			var op string
			switch {
			case event.Op&fsnotify.Write != 0:
				op = "modified"
			case event.Op&fsnotify.Create != 0:
				op = "created"
			case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
				op = "deleted"
			default:
				continue
			}
			select {
			case w.events <- WatchEvent{Path: event.Name, Operation: op}:
			case <-w.done:
				return
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
