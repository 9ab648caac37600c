package eventsource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/mediator"
)

const (
	tracerName = "github.com/jpirok/cleanarchitecture/eventsource"

	// DefaultSlowThreshold is the publish duration after which a warning is logged.
	DefaultSlowThreshold = 500 * time.Millisecond

	pathApplication    = "application"
	pathInfrastructure = "infrastructure"
)

// InfrastructureEventSource forwards events to external messaging.
type InfrastructureEventSource interface {
	PublishEvent(ctx context.Context, topic string, ev domain.Event) error
}

// Options configures a Source.
type Options struct {
	AppName       string
	SlowThreshold time.Duration
	Registerer    prometheus.Registerer
	// Now is used to measure publish duration. Defaults to time.Now.
	Now func() time.Time
}

// Source publishes domain events to in-process subscribers and, when the
// event allows it, to the infrastructure sink.
type Source struct {
	publisher mediator.Publisher
	sink      InfrastructureEventSource
	log       *log.Logger
	appName   string
	slow      time.Duration
	now       func() time.Time
	published *prometheus.CounterVec

	applicationPublished    atomic.Int64
	infrastructurePublished atomic.Int64
}

func New(publisher mediator.Publisher, sink InfrastructureEventSource, logger *log.Logger, opts Options) (*Source, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventsource",
		Name:      "published_total",
		Help:      "Domain events published, by path.",
	}, []string{"path"})
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(counter); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("register event source metrics: %w", err)
			}
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("register event source metrics: %w", err)
			}
			counter = existing
		}
	}
	return &Source{
		publisher: publisher,
		sink:      sink,
		log:       logger,
		appName:   opts.AppName,
		slow:      opts.SlowThreshold,
		now:       opts.Now,
		published: counter,
	}, nil
}

func (s *Source) AppName() string { return s.appName }

// ApplicationPublished returns the number of events dispatched to local subscribers.
func (s *Source) ApplicationPublished() int64 { return s.applicationPublished.Load() }

// InfrastructurePublished returns the number of events accepted by the sink.
func (s *Source) InfrastructurePublished() int64 { return s.infrastructurePublished.Load() }

// Topic returns the infrastructure topic for ev.
func (s *Source) Topic(ev domain.Event) string {
	topic := ev.Header().Topic
	if s.appName == "" {
		return topic
	}
	return s.appName + "/" + topic
}

// Publish dispatches ev locally and then, if allowed, to the sink. Errors from
// either path are returned as is; nothing is retried.
func (s *Source) Publish(ctx context.Context, ev domain.Event) (err error) {
	if ev == nil || ev.Header() == nil {
		return errors.New("eventsource: nil event")
	}
	h := ev.Header()
	name := domain.EventName(ev)
	start := s.now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventsource.publish", trace.WithAttributes(
		attribute.String("event.name", name),
		attribute.String("event.topic", h.Topic),
		attribute.String("event.id", h.ID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		if elapsed := s.now().Sub(start); elapsed > s.slow {
			s.log.WithFields(log.Fields{
				"event":      name,
				"topic":      h.Topic,
				"id":         h.ID,
				"elapsed_ms": elapsed.Milliseconds(),
			}).Warn("slow domain event publication")
		}
	}()

	s.log.WithFields(log.Fields{
		"event": name,
		"topic": h.Topic,
		"id":    h.ID,
	}).Debug("publishing domain event")

	if h.IsPublished {
		return fmt.Errorf("%w: %s", domain.ErrEventAlreadyPublished, h.ID)
	}
	h.Publishing(time.Time{})

	if err := s.publisher.Publish(ctx, ev); err != nil {
		return err
	}
	s.applicationPublished.Add(1)
	s.published.WithLabelValues(pathApplication).Inc()

	if !h.CanPublishToInfrastructure || s.sink == nil {
		return nil
	}
	topic := s.Topic(ev)
	span.SetAttributes(attribute.String("event.infrastructure_topic", topic))
	if err := s.sink.PublishEvent(ctx, topic, ev); err != nil {
		return err
	}
	s.infrastructurePublished.Add(1)
	s.published.WithLabelValues(pathInfrastructure).Inc()
	return nil
}
