package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端IP的令牌桶限流器
// 空闲超过ttl的客户端会被清理
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *cache.Cache
}

// NewRateLimiter 创建限流器，rps为每秒允许的请求数
func NewRateLimiter(rps float64, burst int, ttl time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: cache.New(ttl, ttl),
	}
}

// Allow 判断该客户端当前请求是否放行
func (r *RateLimiter) Allow(key string) bool {
	var limiter *rate.Limiter
	if v, ok := r.clients.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(r.limit, r.burst)
		// 并发首次请求时以先写入者为准
		if err := r.clients.Add(key, limiter, cache.DefaultExpiration); err != nil {
			if v, ok := r.clients.Get(key); ok {
				limiter = v.(*rate.Limiter)
			}
		}
	}
	// 访问时续期
	r.clients.SetDefault(key, limiter)
	return limiter.Allow()
}

// RateLimit 限流中间件
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		HandleError(c, NewRateLimitedError("Too many requests, please slow down"))
		c.Abort()
	}
}
