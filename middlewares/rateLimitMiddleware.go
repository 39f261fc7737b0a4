package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per client IP in fixed redis windows.
type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter limits each client to limit requests per window. client is
// looked up per request because redis connects after the server starts.
func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) key(c *gin.Context) string {
	return "RateLimit:" + c.ClientIP()
}

// Middleware lets requests through while redis is unavailable.
func (rl *RateLimiter) Middleware(c *gin.Context) {
	client := rl.client()
	if client == nil {
		c.Next()
		return
	}
	ctx := c.Request.Context()
	key := rl.key(c)

	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		config.LogError(config.GetLogger(), "RateLimiter", "Middleware", "incr", key, err)
		c.Next()
		return
	}
	if count == 1 {
		if err := client.Expire(ctx, key, rl.window).Err(); err != nil {
			config.LogError(config.GetLogger(), "RateLimiter", "Middleware", "expire", key, err)
		}
	}

	if count > rl.limit {
		c.Header("Retry-After", fmt.Sprint(int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}
