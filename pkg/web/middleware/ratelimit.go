package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/web/errors"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Interval 同一个键两次请求之间的最小间隔
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	// Burst 突发容量
	Burst int `mapstructure:"burst" json:"burst" yaml:"burst"`
	// KeyFunc 限流键生成函数，为空时按客户端 IP 限流
	KeyFunc func(*gin.Context) string `mapstructure:"-" json:"-" yaml:"-"`
}

// RateLimiter 按键限流器
type RateLimiter struct {
	cfg    RateLimitConfig
	logger logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter 创建限流器
func NewRateLimiter(l logger.Logger, cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if l == nil {
		l = logger.NewNoop()
	}
	return &RateLimiter{
		cfg:      cfg,
		logger:   l,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow 检查是否允许请求，Interval <= 0 时不限流
func (rl *RateLimiter) Allow(key string) bool {
	if rl.cfg.Interval <= 0 {
		return true
	}
	return rl.getLimiter(key).Allow()
}

// getLimiter 获取或创建限流器
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.cfg.Interval), rl.cfg.Burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Len 返回当前限流器数量
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimit 限流中间件
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if limiter.cfg.KeyFunc != nil {
			key = limiter.cfg.KeyFunc(c)
		}

		if !limiter.Allow(key) {
			limiter.logger.Warn("rate limit exceeded", "key", key, "path", c.Request.URL.Path)
			retryAfter := int(limiter.cfg.Interval.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    errors.CodeRateLimited,
				"message": "too many requests",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
