package middleware

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Maximum number of limiters to keep in memory
	maxLimiters = 10000
	// Time after which an inactive limiter is removed
	cleanupInterval = 5 * time.Minute
	// Limiter is considered inactive if not used for this duration
	limiterTTL = 15 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-IP token bucket limiting for HTTP requests
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter creates a limiter whose cleanup goroutine stops with ctx.
// requestsPerSecond is the sustained rate per client, burst the bucket size.
func NewRateLimiter(ctx context.Context, requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
	}

	go rl.cleanupLoop(ctx)

	return rl
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops idle limiters, then the least recently used ones while over capacity
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(rl.limiters, key)
		}
	}

	if len(rl.limiters) <= maxLimiters {
		return
	}

	keys := make([]string, 0, len(rl.limiters))
	for k := range rl.limiters {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return rl.limiters[a].lastAccess.Compare(rl.limiters[b].lastAccess)
	})
	for _, k := range keys[:len(keys)-maxLimiters/2] {
		delete(rl.limiters, k)
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = rl.now()
	return entry.limiter
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// clientKey uses the host part of RemoteAddr; chi's RealIP middleware
// has already replaced it with the forwarded address when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware returns a chi-compatible middleware function
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientKey(r))

			if !limiter.Allow() {
				retry := time.Duration(float64(time.Second) / float64(rl.rate))
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
