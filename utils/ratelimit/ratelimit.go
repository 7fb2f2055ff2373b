package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/config"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (bool, error)
	AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error)
	Remaining(ctx context.Context, key string, rule Rule) (int, error)
}

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules groups the rules the HTTP layer applies.
type Rules struct {
	Message Rule
	API     Rule
}

// RulesFromConfig builds per-minute rules from the config.
func RulesFromConfig(cfg config.RateLimitConfig) Rules {
	return Rules{
		Message: Rule{Limit: cfg.MessagePerMinute, Window: time.Minute},
		API:     Rule{Limit: cfg.APIPerMinute, Window: time.Minute},
	}
}

// WindowLimiter counts requests per fixed time window in Redis with INCRBY and
// EXPIRE, so every node sharing the Redis instance sees the same counts.
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool
	now         func() time.Time
}

// NewWindowLimiter creates a limiter. With failOpen set, requests are allowed
// while Redis is unreachable.
func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	return l.AllowN(ctx, key, 1, rule)
}

func (l *WindowLimiter) AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	bucketKey := l.bucketKey(key, rule.Window)

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.IncrBy(ctx, bucketKey, int64(n))
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit check failed", zap.String("key", bucketKey), zap.Error(err))
		if l.failOpen {
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(rule.Limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
			zap.Duration("window", rule.Window),
		)
	}
	return allowed, nil
}

func (l *WindowLimiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, rule.Window)).Int64()
	if err != nil {
		if err == redis.Nil {
			return rule.Limit, nil
		}
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(rule.Limit-int(count), 0), nil
}

func (l *WindowLimiter) bucketKey(key string, window time.Duration) string {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().Unix()/seconds)
}

// Middleware limits each authenticated user, falling back to the client IP,
// under scope. It must run after the auth middleware to see the user id.
func Middleware(limiter Limiter, rule Rule, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := c.GetString("user_id")
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		key := scope + ":" + who

		allowed, err := limiter.Allow(c.Request.Context(), key, rule)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rule.Window/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
