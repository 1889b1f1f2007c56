package domain

import "time"

// UploadTarget is a presigned destination for a single file.
// The URL carries its own expiry, which the client does not validate.
type UploadTarget struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// UploadOutcome is the final state of one upload attempt.
type UploadOutcome string

const (
	OutcomeUploaded UploadOutcome = "uploaded"
	OutcomeFailed   UploadOutcome = "failed"
)

// UploadRecord is one row of upload history.
type UploadRecord struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	Path       string        `json:"path"`
	FileName   string        `json:"file_name"`
	Size       int64         `json:"size"`
	Outcome    UploadOutcome `json:"outcome"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}
