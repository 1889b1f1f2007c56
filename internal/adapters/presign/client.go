// Package presign requests presigned upload URLs from the backend API.
package presign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/adapters/httpclient"
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// Endpoint is the backend path that issues presigned URLs.
	Endpoint = "/get_presigned"

	// ContentType is declared for every file regardless of its extension.
	ContentType = "audio/mpeg"

	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

type presignResponse struct {
	URL string `json:"url"`
}

// Client fetches presigned URLs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpclient.New(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PresignedURL asks the backend for an upload URL for fileName.
func (c *Client) PresignedURL(ctx context.Context, fileName string) (domain.UploadTarget, error) {
	if c.baseURL == "" {
		return domain.UploadTarget{}, c.fail(domain.ErrNoAPIBaseURL)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.UploadTarget{}, c.fail(err)
		}
	}

	endpoint, err := c.endpoint(fileName)
	if err != nil {
		return domain.UploadTarget{}, c.fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.UploadTarget{}, c.fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.UploadTarget{}, c.fail(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.UploadTarget{}, c.fail(&domain.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var payload presignResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return domain.UploadTarget{}, c.fail(fmt.Errorf("decode response: %w", err))
	}
	if payload.URL == "" {
		return domain.UploadTarget{}, c.fail(domain.ErrEmptyPresignedURL)
	}

	log.Debug().
		Str("file", fileName).
		Msg("presigned URL issued")

	return domain.UploadTarget{FileName: fileName, URL: payload.URL}, nil
}

func (c *Client) endpoint(fileName string) (string, error) {
	u, err := url.Parse(c.baseURL + Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid api base URL: %w", err)
	}
	q := u.Query()
	q.Set("file_name", fileName)
	q.Set("file_type", ContentType)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fail(err error) error {
	return domain.NewTransferError(domain.OpPresign, domain.KindTransport, err)
}

var _ ports.URLSigner = (*Client)(nil)
