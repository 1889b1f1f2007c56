// Package watcher turns filesystem notifications into scan nudges using fsnotify.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Config describes what a Watcher observes.
type Config struct {
	Root           string
	SessionID      string
	DebounceMS     int
	IgnorePatterns []string
	// Extensions limits which files produce a nudge. Empty means all files.
	Extensions []string
}

// Watcher implements the FileWatcher port interface. It never uploads;
// it only signals that a scan is worth running early.
type Watcher struct {
	cfg      Config
	notifier ports.Notifier
	changes  chan struct{}

	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	running   bool
	cancel    context.CancelFunc
	debouncer *Debouncer
}

// NewWatcher creates a new filesystem watcher. notifier may be nil.
func NewWatcher(cfg Config, notifier ports.Notifier) *Watcher {
	return &Watcher{
		cfg:      cfg,
		notifier: notifier,
		changes:  make(chan struct{}, 1),
	}
}

// Changes delivers at most one pending nudge at a time.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start begins watching the root directory tree.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.debouncer = NewDebouncer(time.Duration(w.cfg.DebounceMS)*time.Millisecond, w.handleDebouncedEvent)
	w.running = true
	w.mu.Unlock()

	if err := w.addWatchRecursive(w.cfg.Root); err != nil {
		_ = w.Stop()
		return err
	}

	go w.eventLoop(watchCtx, fw)

	log.Debug().
		Str("path", w.cfg.Root).
		Int("debounce_ms", w.cfg.DebounceMS).
		Msg("file watcher started")

	return nil
}

// Stop terminates file watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	if w.cancel != nil {
		w.cancel()
	}
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		log.Debug().Str("path", w.cfg.Root).Msg("file watcher stopped")
		return err
	}
	return nil
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addWatchRecursive adds watches to a directory and all subdirectories.
func (w *Watcher) addWatchRecursive(root string) error {
	w.mu.RLock()
	fw := w.watcher
	w.mu.RUnlock()
	if fw == nil {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to add watch")
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	var change events.FileChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = events.FileChangeCreated
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addWatchRecursive(event.Name)
			// Files copied in with the directory get no events of their own.
			w.nudge()
			return
		}
	case event.Has(fsnotify.Write):
		change = events.FileChangeModified
	default:
		return
	}

	if !w.wanted(event.Name) {
		return
	}

	w.mu.RLock()
	d := w.debouncer
	w.mu.RUnlock()
	if d != nil {
		d.Add(event.Name, change)
	}
}

// handleDebouncedEvent is called once a path has been quiet for the debounce window.
func (w *Watcher) handleDebouncedEvent(path string, change events.FileChangeType) {
	if w.notifier != nil {
		w.notifier.Publish(events.NewFileChangedEvent(w.cfg.SessionID, path, change))
	}
	w.nudge()

	log.Debug().
		Str("path", path).
		Str("change", string(change)).
		Msg("file changed")
}

func (w *Watcher) nudge() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) wanted(path string) bool {
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.cfg.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// shouldIgnore checks the path relative to the root against the ignore patterns.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		rel = path
	}

	for _, part := range splitPath(rel) {
		for _, pattern := range w.cfg.IgnorePatterns {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	var parts []string
	for path != "" && path != "/" && path != "." {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		path = filepath.Clean(dir)
	}
	return parts
}

var _ ports.FileWatcher = (*Watcher)(nil)
