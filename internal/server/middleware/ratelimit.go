package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a fixed-window limiter keyed by client IP. It protects
// the credential endpoints from brute forcing.
type RateLimiter struct {
	buckets map[string]*bucket
	logger  *slog.Logger
	rate    int
	window  time.Duration
	mu      sync.Mutex
}

type bucket struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter allows rate requests per window per client.
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		logger:  logger,
	}
}

// Allow reports whether a request from the given key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		rl.buckets[key] = &bucket{windowStart: now, count: 1}
		rl.gc(now)
		return true
	}

	if b.count < rl.rate {
		b.count++
		return true
	}
	return false
}

// gc drops expired buckets; called under the lock on window rollover.
func (rl *RateLimiter) gc(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.windowStart) >= rl.window*2 {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware rejects clients exceeding rate requests per window
// with 429.
func RateLimitMiddleware(rate int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate, window, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			if !limiter.Allow(key) {
				logger.Warn("Rate limit exceeded",
					"ip", key,
					"method", r.Method,
					"path", r.URL.Path,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return xff[:idx]
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
