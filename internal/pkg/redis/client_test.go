package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/realtime"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFromClient(rdb, nil)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	_, err := NewClient(&config.RedisConfig{Host: "127.0.0.1", Port: 1}, nil)
	assert.Error(t, err)
}

func TestPublishListen(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Ping(ctx))

	pubsub, err := c.SubscribeGroups(ctx)
	require.NoError(t, err)
	defer pubsub.Close()

	got := make(chan realtime.Event, 1)
	go c.Listen(ctx, pubsub, func(ev realtime.Event) { got <- ev })

	ev, err := realtime.NewEvent(realtime.EventMessage, "family", []string{"alice", "bob"}, map[string]string{"body": "hi"})
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, ev))

	select {
	case recv := <-got:
		assert.Equal(t, realtime.EventMessage, recv.Type)
		assert.Equal(t, "family", recv.GroupID)
		assert.Equal(t, []string{"alice", "bob"}, recv.Recipients)
		assert.JSONEq(t, `{"body":"hi"}`, string(recv.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestListenSkipsMalformedPayload(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub, err := c.SubscribeGroups(ctx)
	require.NoError(t, err)
	defer pubsub.Close()

	got := make(chan realtime.Event, 2)
	go c.Listen(ctx, pubsub, func(ev realtime.Event) { got <- ev })

	require.NoError(t, c.GetClient().Publish(ctx, realtime.Channel("family"), "not json").Err())
	// Event claiming another group than its channel.
	require.NoError(t, c.GetClient().Publish(ctx, realtime.Channel("family"), `{"type":"message","groupId":"other"}`).Err())
	ev, _ := realtime.NewEvent(realtime.EventGroupDeleted, "family", []string{"alice"}, nil)
	require.NoError(t, c.Publish(ctx, ev))

	select {
	case recv := <-got:
		assert.Equal(t, realtime.EventGroupDeleted, recv.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, got)
}

func TestPublishFailsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), nil)
	defer c.Close()
	mr.Close()

	ev, _ := realtime.NewEvent(realtime.EventMessage, "family", nil, nil)
	assert.Error(t, c.Publish(context.Background(), ev))
}
