package publish

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisSink publishes every message on a Redis pub/sub channel named after
// its topic, optionally prefixed.
type RedisSink struct {
	client *goredis.Client
	prefix string
}

// NewRedisSink creates a sink over an existing client. A channel is
// prefix + topic.
func NewRedisSink(client *goredis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel of a topic.
func (s *RedisSink) Channel(t Topic) string {
	return s.prefix + string(t)
}

func (s *RedisSink) Name() string    { return "redis" }
func (s *RedisSink) Topics() []Topic { return nil }

// Deliver publishes the JSON envelope.
func (s *RedisSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(msg.Topic), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Topic, err)
	}
	return nil
}

var _ Subscriber = (*RedisSink)(nil)
