package hub

import (
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/sync"
)

// ChannelSubscriber is a subscriber that sends events to a channel.
type ChannelSubscriber struct {
	id   string
	send chan events.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewChannelSubscriber creates a new channel-based subscriber.
func NewChannelSubscriber(id string, bufferSize int) *ChannelSubscriber {
	return &ChannelSubscriber{
		id:   id,
		send: make(chan events.Event, bufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the subscriber's unique identifier.
func (s *ChannelSubscriber) ID() string {
	return s.id
}

// Send sends an event to the subscriber.
// A full buffer is reported as closed so the hub drops the slow reader.
func (s *ChannelSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSubscriberClosed
	}

	select {
	case s.send <- event:
		return nil
	default:
		return domain.ErrSubscriberClosed
	}
}

// Close closes the subscriber.
func (s *ChannelSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.send)
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (s *ChannelSubscriber) Done() <-chan struct{} {
	return s.done
}

// Events returns the channel to receive events from.
func (s *ChannelSubscriber) Events() <-chan events.Event {
	return s.send
}

// FuncSubscriber hands every event to a function on the hub goroutine.
// The function must not block; hand long work to another goroutine.
type FuncSubscriber struct {
	id   string
	done chan struct{}
	fn   func(event events.Event)

	mu     sync.Mutex
	closed bool
}

// NewFuncSubscriber creates a new function subscriber.
func NewFuncSubscriber(id string, fn func(event events.Event)) *FuncSubscriber {
	return &FuncSubscriber{
		id:   id,
		done: make(chan struct{}),
		fn:   fn,
	}
}

// ID returns the subscriber's unique identifier.
func (s *FuncSubscriber) ID() string {
	return s.id
}

// Send calls the function with the event.
func (s *FuncSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return domain.ErrSubscriberClosed
	}
	if s.fn != nil {
		s.fn(event)
	}
	return nil
}

// Close closes the subscriber.
func (s *FuncSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (s *FuncSubscriber) Done() <-chan struct{} {
	return s.done
}

// QueueSubscriber buffers events for a consumer goroutine. Unlike
// ChannelSubscriber, Send waits for room instead of failing, so a slow
// consumer holds back the hub rather than missing events.
type QueueSubscriber struct {
	id    string
	queue chan events.Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewQueueSubscriber creates a queue subscriber holding up to size events.
func NewQueueSubscriber(id string, size int) *QueueSubscriber {
	if size < 1 {
		size = 1
	}
	return &QueueSubscriber{
		id:    id,
		queue: make(chan events.Event, size),
		done:  make(chan struct{}),
	}
}

// ID returns the subscriber's unique identifier.
func (s *QueueSubscriber) ID() string {
	return s.id
}

// Send queues the event, waiting while the queue is full.
func (s *QueueSubscriber) Send(event events.Event) error {
	select {
	case <-s.done:
		return domain.ErrSubscriberClosed
	default:
	}

	select {
	case s.queue <- event:
		return nil
	case <-s.done:
		return domain.ErrSubscriberClosed
	}
}

// Close stops accepting events. The queue is left open so the consumer
// can drain what was already accepted.
func (s *QueueSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Done returns a channel that's closed when the subscriber is closed.
func (s *QueueSubscriber) Done() <-chan struct{} {
	return s.done
}

// Events returns the queue to consume. It is never closed; stop reading
// once Done is closed and the queue is empty.
func (s *QueueSubscriber) Events() <-chan events.Event {
	return s.queue
}
