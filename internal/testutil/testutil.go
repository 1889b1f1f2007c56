// Package testutil provides shared test utilities and fakes for classwatcher tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
)

// MockSubscriber implements ports.Subscriber for testing.
type MockSubscriber struct {
	id       string
	events   []events.Event
	mu       sync.Mutex
	closed   bool
	sendErr  error
	sendFunc func(events.Event) error
	done     chan struct{}
}

// NewMockSubscriber creates a new mock subscriber.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{
		id:     id,
		events: make([]events.Event, 0),
		done:   make(chan struct{}),
	}
}

// ID returns the subscriber ID.
func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the event and returns any configured error.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendFunc != nil {
		return m.sendFunc(e)
	}
	if m.sendErr != nil {
		return m.sendErr
	}

	m.events = append(m.events, e)
	return nil
}

// Close marks the subscriber as closed.
func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (m *MockSubscriber) Done() <-chan struct{} {
	return m.done
}

// Events returns all received events.
func (m *MockSubscriber) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventCount returns the number of received events.
func (m *MockSubscriber) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// IsClosed returns whether the subscriber was closed.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSendError configures an error to return on Send.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetSendFunc sets a custom function for Send behavior.
func (m *MockSubscriber) SetSendFunc(fn func(events.Event) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFunc = fn
}

var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockEventHub implements ports.EventHub for testing. Publish is synchronous
// so tests can assert on event order without waiting.
type MockEventHub struct {
	events      []events.Event
	subscribers []ports.Subscriber
	mu          sync.Mutex
	started     bool
	stopped     bool
}

// NewMockEventHub creates a new mock event hub.
func NewMockEventHub() *MockEventHub {
	return &MockEventHub{
		events:      make([]events.Event, 0),
		subscribers: make([]ports.Subscriber, 0),
	}
}

// Start marks the hub as started.
func (m *MockEventHub) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop marks the hub as stopped.
func (m *MockEventHub) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Publish records the event and forwards it to subscribers.
func (m *MockEventHub) Publish(e events.Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	subs := make([]ports.Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Send(e)
	}
}

// Subscribe records the subscriber.
func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// Unsubscribe removes a subscriber by ID.
func (m *MockEventHub) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub.ID() == id {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of subscribers.
func (m *MockEventHub) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// IsRunning returns true if the hub was started and not stopped.
func (m *MockEventHub) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.stopped
}

// PublishedEvents returns all published events.
func (m *MockEventHub) PublishedEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// PublishedTypes returns the types of all published events in order.
func (m *MockEventHub) PublishedTypes() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.EventType, len(m.events))
	for i, e := range m.events {
		result[i] = e.Type()
	}
	return result
}

// CountType returns how many events of the given type were published.
func (m *MockEventHub) CountType(t events.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

var _ ports.EventHub = (*MockEventHub)(nil)

// FakeSigner implements ports.URLSigner. By default it returns
// "https://upload.test/<file name>".
type FakeSigner struct {
	mu    sync.Mutex
	calls []string
	err   error
	fn    func(ctx context.Context, fileName string) (domain.UploadTarget, error)
}

// NewFakeSigner creates a signer that always succeeds.
func NewFakeSigner() *FakeSigner {
	return &FakeSigner{}
}

// PresignedURL records the call and returns a target or the configured error.
func (f *FakeSigner) PresignedURL(ctx context.Context, fileName string) (domain.UploadTarget, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fileName)
	err, fn := f.err, f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, fileName)
	}
	if err != nil {
		return domain.UploadTarget{}, err
	}
	return domain.UploadTarget{FileName: fileName, URL: "https://upload.test/" + fileName}, nil
}

// SetError makes every call fail with err.
func (f *FakeSigner) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetFunc replaces the default behavior.
func (f *FakeSigner) SetFunc(fn func(ctx context.Context, fileName string) (domain.UploadTarget, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

// Calls returns the file names requested so far.
func (f *FakeSigner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]string, len(f.calls))
	copy(result, f.calls)
	return result
}

var _ ports.URLSigner = (*FakeSigner)(nil)

// Upload is one recorded FakeUploader call.
type Upload struct {
	Path string
	URL  string
}

// FakeUploader implements ports.Uploader and records every call.
type FakeUploader struct {
	mu      sync.Mutex
	uploads []Upload
	err     error
	fn      func(ctx context.Context, path, url string) error
}

// NewFakeUploader creates an uploader that always succeeds.
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{}
}

// Upload records the call.
func (f *FakeUploader) Upload(ctx context.Context, path, url string) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, Upload{Path: path, URL: url})
	err, fn := f.err, f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, path, url)
	}
	return err
}

// SetError makes every call fail with err.
func (f *FakeUploader) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetFunc replaces the default behavior.
func (f *FakeUploader) SetFunc(fn func(ctx context.Context, path, url string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

// Uploads returns the recorded calls.
func (f *FakeUploader) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]Upload, len(f.uploads))
	copy(result, f.uploads)
	return result
}

// Count returns the number of recorded calls.
func (f *FakeUploader) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

var _ ports.Uploader = (*FakeUploader)(nil)

// MemoryHistory implements ports.HistoryStore in memory.
type MemoryHistory struct {
	mu      sync.Mutex
	records []domain.UploadRecord
	err     error
}

// NewMemoryHistory creates an empty history store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Record appends a record.
func (m *MemoryHistory) Record(_ context.Context, rec domain.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

// Recent returns up to limit records, newest first.
func (m *MemoryHistory) Recent(_ context.Context, limit int) ([]domain.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := make([]domain.UploadRecord, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, m.records[i])
	}
	return result, nil
}

// SetError makes every call fail with err.
func (m *MemoryHistory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Len returns the number of stored records.
func (m *MemoryHistory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ ports.HistoryStore = (*MemoryHistory)(nil)

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertEqual is a simple equality assertion helper.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that a condition is true.
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected true, got false", msg)
	}
}

// AssertNoError asserts that an error is nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError asserts that an error is not nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}

// AssertContains checks if a string contains a substring.
func AssertContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: string %q does not contain %q", msg, s, substr)
	}
}
