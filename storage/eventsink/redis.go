package eventsink

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jpirok/cleanarchitecture/domain"
)

// RedisSink publishes events on the Redis channel named after the topic.
type RedisSink struct {
	client redis.Cmdable
}

func NewRedisSink(client redis.Cmdable) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	data, err := encode(topic, ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, topic, data).Err()
}

// PublishBatch sends all events in one pipeline.
func (s *RedisSink) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, ev := range events {
		data, err := encode(topic, ev)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, topic, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}
