// Package hub implements the central event hub for classwatcher.
//
// The watch worker publishes progress events without knowing who listens;
// the terminal logger, the upload history and websocket clients all subscribe here.
package hub

import (
	"sync/atomic"

	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the broadcast queue length used by New.
const DefaultBufferSize = 256

// Hub is the central event dispatcher that fans out events to all subscribers.
type Hub struct {
	subscribers map[string]ports.Subscriber

	broadcast  chan events.Event
	register   chan ports.Subscriber
	unregister chan string

	// mu protects subscribers and running
	mu      sync.RWMutex
	done    chan struct{}
	stopped chan struct{}
	running bool

	dropped atomic.Int64
}

// New creates a new Hub.
func New() *Hub {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer creates a Hub whose broadcast queue holds size events.
func NewWithBuffer(size int) *Hub {
	if size < 1 {
		size = 1
	}
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan events.Event, size),
		register:    make(chan ports.Subscriber),
		unregister:  make(chan string),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("event hub started")

	go h.run()
	return nil
}

// Stop gracefully stops the hub. Events already queued are delivered
// before every subscriber is closed.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.mu.Unlock()

	close(h.done)
	<-h.stopped

	h.mu.Lock()
	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Int64("dropped", h.dropped.Load()).Msg("event hub stopped")
	return nil
}

func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			h.flush()
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID()] = sub
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")

		case id := <-h.unregister:
			h.mu.Lock()
			if sub, ok := h.subscribers[id]; ok {
				_ = sub.Close()
				delete(h.subscribers, id)
			}
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// flush delivers whatever is still queued when the hub stops.
func (h *Hub) flush() {
	for n := len(h.broadcast); n > 0; n-- {
		select {
		case event := <-h.broadcast:
			h.deliver(event)
		default:
			return
		}
	}
}

// deliver sends one event to every subscriber, dropping subscribers that fail.
func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subscribers {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Str("subscriber_id", id).
				Str("event_type", string(event.Type())).
				Err(err).
				Msg("failed to send event to subscriber")
			// unregister is unbuffered and run() is busy here
			go func(subID string) {
				select {
				case h.unregister <- subID:
				case <-h.done:
				}
			}(id)
		}
	}
}

// Publish queues an event for all subscribers. When the queue is full it
// waits for the dispatcher, so a running hub never loses an event. Events
// published to a hub that is not running are dropped once the queue fills.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.broadcast <- event:
		log.Trace().
			Str("event_type", string(event.Type())).
			Msg("event published")
		return
	default:
	}

	if !h.IsRunning() {
		h.drop(event)
		return
	}

	select {
	case h.broadcast <- event:
	case <-h.done:
		h.drop(event)
	}
}

func (h *Hub) drop(event events.Event) {
	h.dropped.Add(1)
	log.Warn().
		Str("event_type", string(event.Type())).
		Msg("event dropped: hub is not running")
}

// Subscribe adds a new subscriber.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unsubscribe removes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many events were discarded because the hub was not running.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

var _ ports.EventHub = (*Hub)(nil)
