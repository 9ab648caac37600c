package eventsink

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/domain"
)

// LogSink writes events to the log. It is used when no broker is configured.
type LogSink struct {
	log *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogSink{log: logger}
}

func (s *LogSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	data, err := encode(topic, ev)
	if err != nil {
		return err
	}
	s.log.WithFields(log.Fields{
		"topic": topic,
		"event": domain.EventName(ev),
		"id":    ev.Header().ID,
	}).Info(string(data))
	return nil
}

func (s *LogSink) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	return publishEach(ctx, s, topic, events)
}
