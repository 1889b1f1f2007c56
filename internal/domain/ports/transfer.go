package ports

import (
	"context"

	"github.com/classwatcher/classwatcher/internal/domain"
)

// URLSigner obtains a presigned upload destination for a file name.
type URLSigner interface {
	PresignedURL(ctx context.Context, fileName string) (domain.UploadTarget, error)
}

// Uploader sends a local file to a presigned URL.
type Uploader interface {
	Upload(ctx context.Context, filePath, url string) error
}

// HistoryStore persists upload outcomes.
type HistoryStore interface {
	Record(ctx context.Context, rec domain.UploadRecord) error
	Recent(ctx context.Context, limit int) ([]domain.UploadRecord, error)
}
