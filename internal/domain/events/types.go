// Package events defines all event types used in classwatcher.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Watch session lifecycle
	EventTypeWatchStarted  EventType = "watch_started"
	EventTypeWatchStopped  EventType = "watch_stopped"
	EventTypeStatusChanged EventType = "status_changed"

	// Per-file upload progress
	EventTypeFileDetected    EventType = "file_detected"
	EventTypeUploadStarted   EventType = "upload_started"
	EventTypeUploadCompleted EventType = "upload_completed"
	EventTypeUploadFailed    EventType = "upload_failed"

	// Free-form log line for the shell
	EventTypeLog EventType = "log"

	// File events (filesystem trigger)
	EventTypeFileChanged EventType = "file_changed"

	// Connection events
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetSessionID returns the watch session ID (may be empty).
	GetSessionID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// GetSessionID returns the session ID.
func (e *BaseEvent) GetSessionID() string {
	return e.SessionID
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewSessionEvent creates a new event scoped to a watch session.
func NewSessionEvent(eventType EventType, payload interface{}, sessionID string) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		SessionID: sessionID,
		Payload:   payload,
	}
}

// --- Connection Event Payloads ---

// HeartbeatPayload is sent periodically to websocket clients.
type HeartbeatPayload struct {
	ServerTime string `json:"server_time"`
	Sequence   int64  `json:"sequence"`
	Status     string `json:"status"`
	Uptime     int64  `json:"uptime_seconds"`
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(sequence int64, status string, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		ServerTime: time.Now().UTC().Format(time.RFC3339),
		Sequence:   sequence,
		Status:     status,
		Uptime:     uptimeSeconds,
	})
}
