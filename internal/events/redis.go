// internal/events/redis.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const SettlementEventsChannel = "settlement_events"

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans events out over pub/sub; subscribers that are offline miss them
type RedisPublisher struct {
	rdb     channelPublisher
	channel string
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	return newRedisPublisher(rdb, channel)
}

func newRedisPublisher(rdb channelPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = SettlementEventsChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *SettlementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close leaves the client open, it is shared with the lease locker
func (p *RedisPublisher) Close() error { return nil }
