// Package httpclient builds the HTTP clients used for backend and storage calls.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds short API calls.
const DefaultTimeout = 30 * time.Second

// New creates an HTTP client with a tuned transport. A zero timeout means
// the client never gives up on its own; the request context still applies.
func New(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
