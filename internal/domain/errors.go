// Package domain contains domain types and errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrAlreadyWatching    = errors.New("a watch session is already running")
	ErrNotWatching        = errors.New("no watch session is running")
	ErrNoFolder           = errors.New("please select a folder first")
	ErrFolderNotDirectory = errors.New("folder is not a directory")
	ErrEmptyPresignedURL  = errors.New("presigned URL response has no url")
	ErrNoAPIBaseURL       = errors.New("api base URL is not set")
	ErrHubNotRunning      = errors.New("event hub is not running")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
	ErrHistoryDisabled    = errors.New("upload history is disabled")
)

// ErrorKind classifies a transfer failure.
type ErrorKind string

const (
	// KindTransport covers connection failures and non-2xx responses.
	KindTransport ErrorKind = "transport"
	// KindLocalIO covers files that cannot be opened or read.
	KindLocalIO ErrorKind = "local_io"
)

// Transfer operations.
const (
	OpPresign = "presign"
	OpUpload  = "upload"
)

// TransferError represents a failure while fetching a presigned URL or uploading a file.
type TransferError struct {
	Op   string    // Operation that failed
	Kind ErrorKind // transport or local_io
	Err  error     // Underlying error
}

func (e *TransferError) Error() string {
	switch e.Op {
	case OpPresign:
		return fmt.Sprintf("failed to get presigned URL: %v", e.Err)
	case OpUpload:
		return fmt.Sprintf("failed to upload file: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new TransferError.
func NewTransferError(op string, kind ErrorKind, err error) *TransferError {
	return &TransferError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// KindOf returns the kind of a transfer error, defaulting to transport.
func KindOf(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransport
}

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
