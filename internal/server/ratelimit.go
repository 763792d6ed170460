package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP for the most recently
// seen clients. An evicted client starts over with a full bucket.
type ipRateLimiter struct {
	visitors *lru.Cache[string, *rate.Limiter]
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

func newIPRateLimiter(r rate.Limit, b int, capacity int) (*ipRateLimiter, error) {
	visitors, err := lru.New[string, *rate.Limiter](capacity)
	if err != nil {
		return nil, err
	}
	return &ipRateLimiter{
		visitors: visitors,
		r:        r,
		b:        b,
	}, nil
}

func (i *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	limiter, exists := i.visitors.Get(ip)
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.visitors.Add(ip, limiter)
	}
	return limiter
}

func (i *ipRateLimiter) tracked() int {
	return i.visitors.Len()
}

func (i *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !i.getLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
