package presign

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
)

func TestPresignedURL_Success(t *testing.T) {
	var gotPath, gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("file_name")
		gotType = r.URL.Query().Get("file_type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url": "https://bucket.example.com/lecture%201.mp3?sig=abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	target, err := c.PresignedURL(context.Background(), "lecture 1.mp3")
	if err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}

	if gotPath != "/get_presigned" {
		t.Errorf("path = %q, want /get_presigned", gotPath)
	}
	if gotName != "lecture 1.mp3" {
		t.Errorf("file_name = %q, want %q", gotName, "lecture 1.mp3")
	}
	if gotType != "audio/mpeg" {
		t.Errorf("file_type = %q, want audio/mpeg", gotType)
	}
	if target.URL != "https://bucket.example.com/lecture%201.mp3?sig=abc" {
		t.Errorf("URL = %q", target.URL)
	}
	if target.FileName != "lecture 1.mp3" {
		t.Errorf("FileName = %q", target.FileName)
	}
}

func TestPresignedURL_WavStillDeclaredMPEG(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.URL.Query().Get("file_type")
		_, _ = w.Write([]byte(`{"url": "https://u"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).PresignedURL(context.Background(), "a.wav"); err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}
	if gotType != "audio/mpeg" {
		t.Errorf("file_type = %q, want audio/mpeg", gotType)
	}
}

func TestPresignedURL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bucket unavailable", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var se *domain.StatusError
				if !errors.As(err, &se) {
					t.Fatalf("error = %v, want StatusError", err)
				}
				if se.StatusCode != http.StatusInternalServerError {
					t.Errorf("StatusCode = %d", se.StatusCode)
				}
				if !strings.Contains(err.Error(), "bucket unavailable") {
					t.Errorf("error %q should carry the body", err)
				}
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "decode response") {
					t.Errorf("error = %v, want decode failure", err)
				}
			},
		},
		{
			name: "missing url field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"link": "https://x"}`))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, domain.ErrEmptyPresignedURL) {
					t.Errorf("error = %v, want ErrEmptyPresignedURL", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).PresignedURL(context.Background(), "a.mp3")
			if err == nil {
				t.Fatal("PresignedURL() expected error")
			}
			if !strings.HasPrefix(err.Error(), "failed to get presigned URL: ") {
				t.Errorf("error = %q, want presign prefix", err)
			}
			if domain.KindOf(err) != domain.KindTransport {
				t.Errorf("KindOf() = %q, want transport", domain.KindOf(err))
			}
			tt.check(t, err)
		})
	}
}

func TestPresignedURL_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, time.Second).PresignedURL(context.Background(), "a.mp3")
	var te *domain.TransferError
	if !errors.As(err, &te) || te.Op != domain.OpPresign {
		t.Fatalf("error = %v, want presign TransferError", err)
	}
}

func TestPresignedURL_NoBaseURL(t *testing.T) {
	_, err := NewClient("", time.Second).PresignedURL(context.Background(), "a.mp3")
	if !errors.Is(err, domain.ErrNoAPIBaseURL) {
		t.Errorf("error = %v, want ErrNoAPIBaseURL", err)
	}
}

func TestPresignedURL_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url": "https://u"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithRateLimit(1))
	if _, err := c.PresignedURL(context.Background(), "a.mp3"); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.PresignedURL(ctx, "b.mp3"); err == nil {
		t.Error("second call within the same second should wait and fail on context deadline")
	}
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("https://api.example.com", time.Second, WithHTTPClient(hc))
	if c.httpClient != hc {
		t.Error("WithHTTPClient() not applied")
	}
	if c.BaseURL() != "https://api.example.com" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}
