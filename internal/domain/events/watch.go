package events

import (
	"fmt"
	"time"
)

// WatchStatus is the indicator shown by the shell.
type WatchStatus string

const (
	StatusWatching    WatchStatus = "watching"
	StatusNotWatching WatchStatus = "not_watching"
)

// Label returns the human label for a status.
func (s WatchStatus) Label() string {
	if s == StatusWatching {
		return "Watching..."
	}
	return "Not Watching"
}

// WatchStartedPayload is the payload for watch_started events.
type WatchStartedPayload struct {
	Folder string    `json:"folder"`
	Since  time.Time `json:"since"`
}

// WatchStoppedPayload is the payload for watch_stopped events.
type WatchStoppedPayload struct {
	Folder    string `json:"folder"`
	Processed int    `json:"processed"`
	Abandoned bool   `json:"abandoned,omitempty"`
}

// StatusChangedPayload is the payload for status_changed events.
type StatusChangedPayload struct {
	Status WatchStatus `json:"status"`
	Label  string      `json:"label"`
}

// UploadPayload is the payload shared by the per-file events.
type UploadPayload struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name"`
	Size      int64  `json:"size,omitempty"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// LogPayload is the payload for log events.
type LogPayload struct {
	Message string `json:"message"`
}

// NewWatchStartedEvent creates a new watch_started event.
func NewWatchStartedEvent(sessionID, folder string, since time.Time) *BaseEvent {
	return NewSessionEvent(EventTypeWatchStarted, WatchStartedPayload{
		Folder: folder,
		Since:  since,
	}, sessionID)
}

// NewWatchStoppedEvent creates a new watch_stopped event.
func NewWatchStoppedEvent(sessionID, folder string, processed int, abandoned bool) *BaseEvent {
	return NewSessionEvent(EventTypeWatchStopped, WatchStoppedPayload{
		Folder:    folder,
		Processed: processed,
		Abandoned: abandoned,
	}, sessionID)
}

// NewStatusChangedEvent creates a new status_changed event.
func NewStatusChangedEvent(status WatchStatus) *BaseEvent {
	return NewEvent(EventTypeStatusChanged, StatusChangedPayload{
		Status: status,
		Label:  status.Label(),
	})
}

// NewFileDetectedEvent creates a new file_detected event.
func NewFileDetectedEvent(sessionID, path, fileName string, size int64) *BaseEvent {
	return NewSessionEvent(EventTypeFileDetected, UploadPayload{
		Path:     path,
		FileName: fileName,
		Size:     size,
	}, sessionID)
}

// NewUploadStartedEvent creates a new upload_started event.
func NewUploadStartedEvent(sessionID, path, fileName, url string) *BaseEvent {
	return NewSessionEvent(EventTypeUploadStarted, UploadPayload{
		Path:     path,
		FileName: fileName,
		URL:      url,
	}, sessionID)
}

// NewUploadCompletedEvent creates a new upload_completed event.
func NewUploadCompletedEvent(sessionID, path, fileName string, size int64) *BaseEvent {
	return NewSessionEvent(EventTypeUploadCompleted, UploadPayload{
		Path:     path,
		FileName: fileName,
		Size:     size,
	}, sessionID)
}

// NewUploadFailedEvent creates a new upload_failed event.
func NewUploadFailedEvent(sessionID, path, fileName string, size int64, errMsg, errKind string) *BaseEvent {
	return NewSessionEvent(EventTypeUploadFailed, UploadPayload{
		Path:      path,
		FileName:  fileName,
		Size:      size,
		Error:     errMsg,
		ErrorKind: errKind,
	}, sessionID)
}

// NewLogEvent creates a new log event.
func NewLogEvent(sessionID, message string) *BaseEvent {
	return NewSessionEvent(EventTypeLog, LogPayload{Message: message}, sessionID)
}

// Describe renders an event as the log line shown to the user.
// It returns an empty string for events that have no user-facing text.
func Describe(e Event) string {
	base, ok := e.(*BaseEvent)
	if !ok {
		return ""
	}

	switch p := base.Payload.(type) {
	case WatchStartedPayload:
		return fmt.Sprintf("Watching folder: %s for audio files...", p.Folder)
	case WatchStoppedPayload:
		return "Stopped listening."
	case StatusChangedPayload:
		return "Status: " + p.Label
	case LogPayload:
		return p.Message
	case UploadPayload:
		switch base.EventType {
		case EventTypeFileDetected:
			return "New audio detected: " + p.Path
		case EventTypeUploadStarted:
			return "Uploading audio to: " + p.URL
		case EventTypeUploadCompleted:
			return "Audio uploaded: " + p.Path
		case EventTypeUploadFailed:
			return "Error: " + p.Error
		}
	}
	return ""
}
