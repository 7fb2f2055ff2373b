package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func fixedLimiter(client *redis.Client, failOpen bool) *WindowLimiter {
	l := NewWindowLimiter(client, zap.NewNop(), failOpen)
	at := time.Date(2024, 12, 24, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return at }
	return l
}

func TestAllow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()
	rule := Rule{Limit: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "message:alice", rule)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, err := limiter.Allow(ctx, "message:alice", rule)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys are independent.
	allowed, err = limiter.Allow(ctx, "message:bob", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowNAndRemaining(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()
	rule := Rule{Limit: 10, Window: time.Minute}

	remaining, err := limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	allowed, err := limiter.AllowN(ctx, "k", 8, rule)
	require.NoError(t, err)
	assert.True(t, allowed)

	remaining, err = limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	allowed, err = limiter.AllowN(ctx, "k", 3, rule)
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err = limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestZeroLimitDisablesRule(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "k", Rule{})
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()
	rule := Rule{Limit: 1, Window: time.Minute}

	allowed, err := fixedLimiter(client, true).Allow(context.Background(), "k", rule)
	assert.NoError(t, err)
	assert.True(t, allowed)

	_, err = fixedLimiter(client, false).Allow(context.Background(), "k", rule)
	assert.Error(t, err)
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.RateLimitConfig{MessagePerMinute: 30, APIPerMinute: 300})
	assert.Equal(t, Rule{Limit: 30, Window: time.Minute}, rules.Message)
	assert.Equal(t, Rule{Limit: 300, Window: time.Minute}, rules.API)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	})
	r.POST("/messages", Middleware(limiter, Rule{Limit: 2, Window: time.Minute}, "message"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("alice"))
	assert.Equal(t, http.StatusCreated, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusCreated, send("bob"))
}
