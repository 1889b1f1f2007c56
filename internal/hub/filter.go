package hub

import (
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
)

// FilteredSubscriber wraps a subscriber and only forwards selected event types.
// With no types selected every event is forwarded. Heartbeats always pass.
type FilteredSubscriber struct {
	inner ports.Subscriber
	types map[events.EventType]bool
	mu    sync.RWMutex
}

// NewFilteredSubscriber creates a filtered subscriber, optionally preselecting types.
func NewFilteredSubscriber(inner ports.Subscriber, types ...events.EventType) *FilteredSubscriber {
	f := &FilteredSubscriber{
		inner: inner,
		types: make(map[events.EventType]bool),
	}
	for _, t := range types {
		f.types[t] = true
	}
	return f
}

// ID returns the subscriber's unique identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send forwards the event if it passes the filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// Allow adds event types to the filter.
func (f *FilteredSubscriber) Allow(types ...events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range types {
		f.types[t] = true
	}
}

// AllowAll clears the filter, forwarding all events.
func (f *FilteredSubscriber) AllowAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = make(map[events.EventType]bool)
}

// IsFiltering returns true if only selected types are forwarded.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.types) > 0
}

func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	if event.Type() == events.EventTypeHeartbeat {
		return true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.types) == 0 {
		return true
	}
	return f.types[event.Type()]
}
