package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// sellerLimiters hands out one token bucket per seller
type sellerLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (s *sellerLimiters) get(sellerID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[sellerID]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[sellerID] = limiter
	}
	return limiter
}

// SellerRateLimit caps how many requests per minute a single seller may make.
// It must run after SellerMiddleware. A non-positive limit disables it.
func SellerRateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	limiters := &sellerLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}

	return func(c *gin.Context) {
		if !limiters.get(GetSellerID(c)).Allow() {
			c.Header("Retry-After", "10")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many requests. Please slow down and try again.",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
