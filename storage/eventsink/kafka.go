package eventsink

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/jpirok/cleanarchitecture/domain"
)

// KafkaSink produces events to the Kafka topic derived from the event topic,
// keyed by the source entity so that one entity's events share a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
}

func NewKafkaSink(producer sarama.SyncProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

// NewKafkaProducer connects a synchronous producer to brokers.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, config)
}

func (s *KafkaSink) message(topic string, ev domain.Event) (*sarama.ProducerMessage, error) {
	data, err := encode(topic, ev)
	if err != nil {
		return nil, err
	}
	h := ev.Header()
	return &sarama.ProducerMessage{
		Topic: dotted(topic),
		Key:   sarama.StringEncoder(h.Source.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-id"), Value: []byte(h.ID.String())},
			{Key: []byte("event-name"), Value: []byte(domain.EventName(ev))},
		},
	}, nil
}

func (s *KafkaSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.message(topic, ev)
	if err != nil {
		return err
	}
	_, _, err = s.producer.SendMessage(msg)
	return err
}

func (s *KafkaSink) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, ev := range events {
		msg, err := s.message(topic, ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return s.producer.SendMessages(msgs)
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
