package events

import (
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans events out over Redis Pub/Sub so observers connected to
// other processes can relay them
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(addr, password string, db int) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPublisher{client: rdb}, nil
}

// NewRedisPublisherFromClient wraps an existing client
func NewRedisPublisherFromClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// AuctionChannel is the Pub/Sub channel carrying every event of an auction
func AuctionChannel(auctionID string) string {
	return fmt.Sprintf("auction_events:%s", auctionID)
}

// UserChannel is the Pub/Sub channel carrying events addressed to one bidder
func UserChannel(userID string) string {
	return fmt.Sprintf("user_events:%s", userID)
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...model.Event) {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			utils.Error("redis: failed to marshal event", map[string]any{"event_id": e.EventID, "error": err.Error()})
			continue
		}

		channel := AuctionChannel(e.AuctionID)
		if e.IsAddressed() {
			channel = UserChannel(e.BidderID)
		}

		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			metrics.EventsPublished.WithLabelValues("redis", "error").Inc()
			utils.Warn("redis: failed to publish event", map[string]any{
				"channel": channel,
				"kind":    e.Kind,
				"error":   err.Error(),
			})
			continue
		}
		metrics.EventsPublished.WithLabelValues("redis", "ok").Inc()
	}
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
