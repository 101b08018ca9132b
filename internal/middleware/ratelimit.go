package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc extracts the rate-limiting key from a request.
type KeyFunc func(*http.Request) string

// IPAddressKeyFunc keys the limit on the client address. Use behind chi's
// RealIP middleware so proxied requests carry their original address.
func IPAddressKeyFunc(r *http.Request) string {
	return r.RemoteAddr
}

// RateLimiter applies a token-bucket limit per key. The GitHub-facing
// routes sit behind it: every request there fans out into upstream API
// calls, so one aggressive client could burn through the whole app's
// GitHub quota.
type RateLimiter struct {
	extractKey KeyFunc
	limiters   map[string]*rate.Limiter
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	logger     *slog.Logger
}

// NewRateLimiter creates a RateLimiter allowing `limit` events per second
// with the given burst, tracked separately per key.
func NewRateLimiter(logger *slog.Logger, keyFunc KeyFunc, limit rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		extractKey: keyFunc,
		limiters:   make(map[string]*rate.Limiter),
		rate:       limit,
		burst:      burst,
		logger:     logger,
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically drops idle per-key limiters so the map doesn't grow
// without bound. A limiter whose bucket is full again has been idle long
// enough to forget.
func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, limiter := range rl.limiters {
			if limiter.Tokens() >= float64(rl.burst) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Limit is the middleware. Over-limit requests get a 429 in the standard
// API envelope.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(rl.extractKey(r)).Allow() {
			rl.logger.Warn("rate limit exceeded",
				slog.String("remoteAddr", r.RemoteAddr),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"Rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
