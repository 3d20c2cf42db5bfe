package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map; past it the map is reset and
// every client starts with a fresh bucket.
const maxTrackedClients = 10000

type clientLimiters struct {
	mu       sync.Mutex
	rps      int
	limiters map[string]*rate.Limiter
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(l.rps), l.rps)
		l.limiters[key] = lim
	}
	return lim
}

// RateLimitMiddleware applies a token bucket of rps requests per second per
// client IP.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiters := &clientLimiters{rps: rps, limiters: make(map[string]*rate.Limiter)}

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
