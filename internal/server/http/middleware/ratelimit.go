// Package middleware provides HTTP middleware for the control API.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/classwatcher/classwatcher/internal/sync"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRequests = 30              // burst per key
	DefaultWindow      = 1 * time.Minute // refill period for a full burst
	DefaultCleanup     = 5 * time.Minute // stale key sweep interval
)

// RateLimiter is a token bucket per key. Each key may spend maxRequests
// at once and regains them evenly over window.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	limiters map[string]*entry

	cleanupDone chan struct{}
	closeOnce   sync.Once
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithMaxRequests sets the burst size per key.
func WithMaxRequests(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.maxRequests = n
		}
	}
}

// WithWindow sets how long a key takes to regain a full burst.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRateLimiter creates a RateLimiter and starts its cleanup loop.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		maxRequests: DefaultMaxRequests,
		window:      DefaultWindow,
		limiters:    make(map[string]*entry),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.cleanupLoop()
	return r
}

// MaxRequests returns the burst size per key.
func (r *RateLimiter) MaxRequests() int {
	return r.maxRequests
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	return r.get(key).Allow()
}

// Remaining returns the whole tokens left for key.
func (r *RateLimiter) Remaining(key string) int {
	n := int(r.get(key).Tokens())
	if n < 0 {
		return 0
	}
	return n
}

// Reset forgets key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, key)
}

// Close stops the cleanup loop.
func (r *RateLimiter) Close() {
	r.closeOnce.Do(func() { close(r.cleanupDone) })
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.limiters[key]
	if !ok {
		every := r.window / time.Duration(r.maxRequests)
		e = &entry{limiter: rate.NewLimiter(rate.Every(every), r.maxRequests)}
		r.limiters[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(DefaultCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-r.cleanupDone:
			return
		case <-ticker.C:
			r.cleanup(time.Now())
		}
	}
}

// cleanup drops keys idle long enough to have refilled completely.
func (r *RateLimiter) cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	for key, e := range r.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}

// KeyExtractor derives the rate limit key from a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the remote IP. Forwarding headers are ignored.
func IPKeyExtractor(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(limiter *RateLimiter, keyExtractor KeyExtractor) func(http.Handler) http.Handler {
	if keyExtractor == nil {
		keyExtractor = IPKeyExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)

			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window/time.Duration(limiter.maxRequests)/time.Second)+1))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))

			next.ServeHTTP(w, r)
		})
	}
}
