package eventsink

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/jpirok/cleanarchitecture/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueSink enqueues one Azure Storage queue message per event.
type QueueSink struct {
	queue queueClient
}

func NewQueueSink(queue queueClient) *QueueSink {
	return &QueueSink{queue: queue}
}

func (s *QueueSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	data, err := encode(topic, ev)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func (s *QueueSink) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	return publishEach(ctx, s, topic, events)
}
