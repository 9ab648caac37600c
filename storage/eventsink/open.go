package eventsink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/storage"
)

const (
	DriverLog      = "log"
	DriverQueue    = "queue"
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
)

// Config selects and configures the infrastructure sink.
type Config struct {
	Driver string

	StorageConnectionString string
	Queue                   string

	Redis redis.Cmdable

	KafkaBrokers []string

	RabbitURL      string
	RabbitExchange string
}

// Open builds the configured sink wrapped in a Buffer.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Buffer, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	var sink Sink
	switch cfg.Driver {
	case "", DriverLog:
		sink = NewLogSink(logger)
	case DriverQueue:
		q, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.Queue)
		if err != nil {
			return nil, fmt.Errorf("event queue: %w", err)
		}
		if err := storage.EnsureQueue(ctx, q); err != nil {
			return nil, fmt.Errorf("event queue %s: %w", cfg.Queue, err)
		}
		sink = NewQueueSink(q)
	case DriverRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("event sink %q requires a redis client", cfg.Driver)
		}
		sink = NewRedisSink(cfg.Redis)
	case DriverKafka:
		producer, err := NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		sink = NewKafkaSink(producer)
	case DriverRabbitMQ:
		rs, err := DialRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, err
		}
		sink = rs
	default:
		return nil, fmt.Errorf("unknown event sink driver %q", cfg.Driver)
	}
	logger.WithField("driver", cfg.Driver).Info("event sink ready")
	return NewBuffer(sink, logger), nil
}
