package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter caps sends per user inside a fixed one-minute window.
// A limit of zero disables it.
type rateLimiter struct {
	limit int

	mu       sync.Mutex
	counters map[string]int
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit:    limit,
		counters: make(map[string]int),
	}
}

func (r *rateLimiter) allow(userID string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[userID]++
	return r.counters[userID] <= r.limit
}

func (r *rateLimiter) startReset(stop <-chan struct{}) {
	if r == nil || r.limit <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.mu.Lock()
				r.counters = make(map[string]int)
				r.mu.Unlock()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware rejects sends above the per-user budget.
func RateLimitMiddleware(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if ok && !limiter.allow(string(userID)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
