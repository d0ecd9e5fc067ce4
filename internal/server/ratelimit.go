package server

import (
	"errors"
	"net/http"
	"sync"

	"auction-marketplace/services/bidding/helpers"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedLimiters bounds the per-user map; it is reset when exceeded
const maxTrackedLimiters = 10000

var errRateLimited = errors.New("rate limit exceeded")

// BidRateLimiter throttles bid placement per user, falling back to the
// client IP for anonymous callers
type BidRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewBidRateLimiter returns a limiter allowing rps requests per second with
// the given burst. A zero rps disables limiting.
func NewBidRateLimiter(rps float64, burst int) *BidRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &BidRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether key may make another request now
func (rl *BidRateLimiter) Allow(key string) bool {
	if rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	limiter, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxTrackedLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Middleware must run after the identity middleware
func (rl *BidRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := helpers.UserID(c)
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			utils.JSONError(c, http.StatusTooManyRequests, errRateLimited, "too many bids, slow down")
			utils.Warn("BidRateLimiter: request throttled", map[string]any{"key": key, "path": c.Request.URL.Path})
			c.Abort()
			return
		}
		c.Next()
	}
}
