package eventsink

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jpirok/cleanarchitecture/domain"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitSink publishes events to a topic exchange. The routing key is the
// event topic with slashes replaced by dots.
type RabbitSink struct {
	channel  Channel
	exchange string
	conn     *amqp.Connection
}

func NewRabbitSink(ch Channel, exchange string) *RabbitSink {
	return &RabbitSink{channel: ch, exchange: exchange}
}

// DialRabbit connects to url and declares a durable topic exchange.
func DialRabbit(url, exchange string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange %s: %w", exchange, err)
	}
	s := NewRabbitSink(ch, exchange)
	s.conn = conn
	return s, nil
}

func (s *RabbitSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	data, err := encode(topic, ev)
	if err != nil {
		return err
	}
	h := ev.Header()
	return s.channel.PublishWithContext(ctx, s.exchange, dotted(topic), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    h.ID.String(),
		Timestamp:    h.Time,
		Type:         domain.EventName(ev),
		Body:         data,
	})
}

func (s *RabbitSink) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	return publishEach(ctx, s, topic, events)
}

func (s *RabbitSink) Close() error {
	err := s.channel.Close()
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	return err
}
