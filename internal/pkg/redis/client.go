package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/realtime"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

// Client wraps a go-redis client and carries realtime events over pub/sub.
type Client struct {
	client *redis.Client
	log    *logger.Logger
}

var _ realtime.Publisher = (*Client)(nil)

func NewClient(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewFromClient(rdb, log), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{client: rdb, log: log.Named("redis")}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Publish sends ev on its group's channel.
func (c *Client) Publish(ctx context.Context, ev realtime.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	channel := realtime.Channel(ev.GroupID)
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// SubscribeGroups subscribes to every group channel and waits for the
// subscription to be confirmed.
func (c *Client) SubscribeGroups(ctx context.Context) (*redis.PubSub, error) {
	pubsub := c.client.PSubscribe(ctx, realtime.ChannelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to psubscribe to %s: %w", realtime.ChannelPattern, err)
	}
	return pubsub, nil
}

// Listen decodes events from pubsub and hands them to handle until ctx is
// cancelled or the subscription is closed. Malformed payloads are logged and
// skipped.
func (c *Client) Listen(ctx context.Context, pubsub *redis.PubSub, handle func(realtime.Event)) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev realtime.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if groupID, ok := realtime.GroupFromChannel(msg.Channel); !ok || groupID != ev.GroupID {
				c.log.Warn("dropping event on mismatched channel", zap.String("channel", msg.Channel), zap.String("group_id", ev.GroupID))
				continue
			}
			handle(ev)
		}
	}
}
