// Package notify fans analysis status changes out to subscribers over Redis
// pub/sub. Delivery is best-effort: the orchestrator never retries a failed
// publish.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers a status-change payload to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// TaskChannel is the fan-out channel for one engine task.
func TaskChannel(taskID string) string {
	return fmt.Sprintf("analysis:task:%s", taskID)
}

// ProductChannel is the fan-out channel for one product, kept for UI clients
// that subscribe before a task id exists.
func ProductChannel(productID string) string {
	return fmt.Sprintf("analysis:product:%s", productID)
}

// RedisPublisher implements Publisher over Redis pub/sub with JSON payloads.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := p.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Compile-time check that RedisPublisher implements Publisher.
var _ Publisher = (*RedisPublisher)(nil)
