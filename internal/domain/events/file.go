package events

// FileChangeType represents the type of file change.
type FileChangeType string

const (
	FileChangeCreated  FileChangeType = "created"
	FileChangeModified FileChangeType = "modified"
)

// FileChangedPayload is the payload for file_changed events.
type FileChangedPayload struct {
	Path   string         `json:"path"`
	Change FileChangeType `json:"change"`
}

// NewFileChangedEvent creates a new file_changed event.
func NewFileChangedEvent(sessionID, path string, change FileChangeType) *BaseEvent {
	return NewSessionEvent(EventTypeFileChanged, FileChangedPayload{
		Path:   path,
		Change: change,
	}, sessionID)
}
