package handler

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces a fixed-window request cap per caller. Callers are
// identified by API key when one is sent, client IP otherwise.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   int
	window  time.Duration
}

type rateWindow struct {
	start time.Time
	count int
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
func NewRateLimiter(limit, windowSec int) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   limit,
		window:  time.Duration(windowSec) * time.Second,
	}
}

// Middleware returns the gin middleware enforcing the limit
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.GetHeader("X-API-Key")
		if identifier == "" {
			identifier = c.ClientIP()
		}

		if !rl.Allow(identifier) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded: %d requests per %d seconds", rl.limit, int(rl.window.Seconds())),
			})
			return
		}

		c.Next()
	}
}

// Allow records a request for the identifier and reports whether it is
// within the limit
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[identifier]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.windows[identifier] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// APIKeyAuth enforces the X-API-Key header. Attach only when key checking
// is enabled.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "API key not configured"})
			return
		}
		if c.GetHeader("X-API-Key") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}
