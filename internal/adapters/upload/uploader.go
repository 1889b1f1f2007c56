// Package upload sends local audio files to presigned storage URLs.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/adapters/httpclient"
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// ContentType is sent for every upload. It must match the type the URL was signed for.
const ContentType = "audio/mpeg"

const maxErrorBody = 512

// Uploader streams files with a single PUT.
type Uploader struct {
	httpClient *http.Client
}

// NewUploader creates an uploader. A zero timeout leaves large uploads unbounded.
func NewUploader(timeout time.Duration) *Uploader {
	return &Uploader{httpClient: httpclient.New(timeout)}
}

// NewUploaderWithClient creates an uploader on an existing HTTP client.
func NewUploaderWithClient(hc *http.Client) *Uploader {
	return &Uploader{httpClient: hc}
}

// Upload PUTs the file at filePath to url.
func (u *Uploader) Upload(ctx context.Context, filePath, url string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return domain.NewTransferError(domain.OpUpload, domain.KindLocalIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.NewTransferError(domain.OpUpload, domain.KindLocalIO, err)
	}
	if info.IsDir() {
		return domain.NewTransferError(domain.OpUpload, domain.KindLocalIO,
			fmt.Errorf("%s is a directory", filePath))
	}

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return domain.NewTransferError(domain.OpUpload, domain.KindTransport, fmt.Errorf("create request: %w", err))
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", ContentType)

	start := time.Now()
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return domain.NewTransferError(domain.OpUpload, domain.KindTransport, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewTransferError(domain.OpUpload, domain.KindTransport, &domain.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(b)),
		})
	}

	log.Debug().
		Str("path", filePath).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("upload finished")

	return nil
}

var _ ports.Uploader = (*Uploader)(nil)
