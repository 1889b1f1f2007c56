package watcher

import (
	"time"

	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/sync"
)

type pendingChange struct {
	change events.FileChangeType
	timer  *time.Timer
}

// Debouncer coalesces rapid events for the same path. A file being copied
// produces one create and many writes; the callback fires once the path
// has been quiet for the window.
type Debouncer struct {
	window   time.Duration
	callback func(path string, change events.FileChangeType)

	mu      sync.Mutex
	pending map[string]*pendingChange
	stopped bool
}

// NewDebouncer creates a new debouncer with the given window and callback.
func NewDebouncer(window time.Duration, callback func(path string, change events.FileChangeType)) *Debouncer {
	return &Debouncer{
		window:   window,
		callback: callback,
		pending:  make(map[string]*pendingChange),
	}
}

// Add queues an event for debouncing.
func (d *Debouncer) Add(path string, change events.FileChangeType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[path]; ok {
		existing.timer.Stop()
		// Created wins over modified.
		if existing.change != events.FileChangeCreated {
			existing.change = change
		}
		existing.timer = time.AfterFunc(d.window, func() { d.fire(path) })
		return
	}

	d.pending[path] = &pendingChange{
		change: change,
		timer:  time.AfterFunc(d.window, func() { d.fire(path) }),
	}
}

// Pending returns the number of paths waiting for their window to expire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	if d.callback != nil {
		d.callback(path, p.change)
	}
}

// Stop cancels all pending timers. Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingChange)
}
