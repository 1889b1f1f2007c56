package http

import (
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/session"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse is returned by GET /api/status and the watch endpoints.
type StatusResponse struct {
	session.Status
	ConfiguredFolder string `json:"configured_folder,omitempty"`
	Version          string `json:"version,omitempty"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// FolderRequest is the body of PUT /api/folder and POST /api/watch/start.
type FolderRequest struct {
	FolderPath string `json:"folder_path"`
}

// FolderResponse is returned by the folder endpoints.
type FolderResponse struct {
	FolderPath string `json:"folder_path"`
}

// UploadsResponse is returned by GET /api/uploads.
type UploadsResponse struct {
	Uploads []domain.UploadRecord `json:"uploads"`
	Count   int                   `json:"count"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
