package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog"
)

// RateLimiter implements a per-key token bucket rate limiter backed by
// golang.org/x/time/rate, bucketed by the X-Forwarded-For header value
// when present, otherwise by the request's remote address.
type RateLimiter struct {
	logger  zerolog.Logger
	enabled bool
	rps     float64
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(logger zerolog.Logger, enabled bool, rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		logger:   logger,
		enabled:  enabled,
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		limiter := rl.limiterFor(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
			return
		}
		delay := reservation.Delay()
		if delay > 0 {
			reservation.Cancel()
			retryAfter := int(delay.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, fmt.Sprintf(`{"error":"rate_limit_exceeded","retry_after":%d}`, retryAfter), http.StatusTooManyRequests)
			rl.logger.Warn().Str("key", key).Float64("rps", rl.rps).Msg("rate limit exceeded")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		next.ServeHTTP(w, r)
	})
}

// Cleanup removes limiters that have been idle and are back at full
// burst capacity. Call periodically from a background goroutine.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, l := range rl.limiters {
		if l.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
