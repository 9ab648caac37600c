// Package eventsink forwards domain events to external messaging systems.
package eventsink

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/jpirok/cleanarchitecture/domain"
)

// Sink publishes events under a topic.
type Sink interface {
	PublishEvent(ctx context.Context, topic string, ev domain.Event) error
	PublishBatch(ctx context.Context, topic string, events []domain.Event) error
}

// Envelope is the wire format shared by all sinks.
type Envelope struct {
	Topic string       `json:"topic"`
	Name  string       `json:"name"`
	Event domain.Event `json:"event"`
}

func encode(topic string, ev domain.Event) ([]byte, error) {
	return sonic.Marshal(Envelope{Topic: topic, Name: domain.EventName(ev), Event: ev})
}

// dotted converts a slash separated topic to a broker routing name.
func dotted(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func publishEach(ctx context.Context, s Sink, topic string, events []domain.Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.PublishEvent(ctx, topic, ev); err != nil {
			return err
		}
	}
	return nil
}
