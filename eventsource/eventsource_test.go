package eventsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/mediator"
)

type recordingSink struct {
	topics []string
	err    error
}

func (s *recordingSink) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	if s.err != nil {
		return s.err
	}
	s.topics = append(s.topics, topic)
	return nil
}

// stepClock advances by step on every call.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newSource(t *testing.T, pub mediator.Publisher, sink InfrastructureEventSource, opts Options) (*Source, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	src, err := New(pub, sink, logger, opts)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src, hook
}

func newTask() *domain.Task {
	return domain.NewTask("user-1", "Title", "", "normal", 0)
}

func TestPublishDispatchesLocallyAndToInfrastructure(t *testing.T) {
	m := mediator.New()
	var local int
	mediator.Subscribe(m, func(ctx context.Context, ev *domain.TaskCreated) error {
		local++
		return nil
	})
	sink := &recordingSink{}
	reg := prometheus.NewRegistry()
	src, _ := newSource(t, m, sink, Options{AppName: "tasks-api", Registerer: reg})

	ev := newTask().DomainEvents()[0]
	if err := src.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if local != 1 {
		t.Fatalf("expected local subscriber to run once, got %d", local)
	}
	if len(sink.topics) != 1 || sink.topics[0] != "tasks-api/Task/created" {
		t.Fatalf("unexpected sink topics %v", sink.topics)
	}
	if !ev.Header().IsPublished || ev.Header().Time.IsZero() {
		t.Fatalf("expected event to be stamped as published")
	}
	if src.ApplicationPublished() != 1 || src.InfrastructurePublished() != 1 {
		t.Fatalf("unexpected counters app=%d infra=%d", src.ApplicationPublished(), src.InfrastructurePublished())
	}
	if got := testutil.ToFloat64(src.published.WithLabelValues(pathInfrastructure)); got != 1 {
		t.Fatalf("unexpected prometheus infrastructure count %v", got)
	}
}

func TestPublishWithoutAppNameUsesPlainTopic(t *testing.T) {
	sink := &recordingSink{}
	src, _ := newSource(t, mediator.New(), sink, Options{})

	if err := src.Publish(context.Background(), newTask().DomainEvents()[0]); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.topics) != 1 || sink.topics[0] != "Task/created" {
		t.Fatalf("unexpected sink topics %v", sink.topics)
	}
}

func TestPublishInProcessOnlyEventSkipsSink(t *testing.T) {
	sink := &recordingSink{}
	src, _ := newSource(t, mediator.New(), sink, Options{AppName: "app"})

	task := newTask()
	_ = task.Complete()
	_ = task.Reopen()
	events := task.DomainEvents()
	reopened := events[len(events)-1]
	if reopened.Header().CanPublishToInfrastructure {
		t.Fatalf("expected in-process event")
	}

	for i := 0; i < 3; i++ {
		reopened.Header().IsPublished = false
		if err := src.Publish(context.Background(), reopened); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(sink.topics) != 0 {
		t.Fatalf("sink must not be called, got %v", sink.topics)
	}
	if src.ApplicationPublished() != 3 || src.InfrastructurePublished() != 0 {
		t.Fatalf("unexpected counters app=%d infra=%d", src.ApplicationPublished(), src.InfrastructurePublished())
	}
}

func TestPublishRejectsAlreadyPublishedEvent(t *testing.T) {
	sink := &recordingSink{}
	src, _ := newSource(t, mediator.New(), sink, Options{})

	ev := newTask().DomainEvents()[0]
	if err := src.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := src.Publish(context.Background(), ev); !errors.Is(err, domain.ErrEventAlreadyPublished) {
		t.Fatalf("expected ErrEventAlreadyPublished, got %v", err)
	}
	if src.ApplicationPublished() != 1 || len(sink.topics) != 1 {
		t.Fatalf("second publish must not dispatch")
	}
}

func TestPublishSinkErrorKeepsApplicationCountAfterLocalDispatch(t *testing.T) {
	boom := errors.New("broker down")
	sink := &recordingSink{err: boom}
	src, _ := newSource(t, mediator.New(), sink, Options{})

	if err := src.Publish(context.Background(), newTask().DomainEvents()[0]); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if src.ApplicationPublished() != 1 || src.InfrastructurePublished() != 0 {
		t.Fatalf("unexpected counters app=%d infra=%d", src.ApplicationPublished(), src.InfrastructurePublished())
	}
}

func TestPublishSubscriberErrorStopsBeforeSink(t *testing.T) {
	m := mediator.New()
	boom := errors.New("projection failed")
	mediator.Subscribe(m, func(ctx context.Context, ev domain.Event) error { return boom })
	sink := &recordingSink{}
	src, _ := newSource(t, m, sink, Options{})

	if err := src.Publish(context.Background(), newTask().DomainEvents()[0]); !errors.Is(err, boom) {
		t.Fatalf("expected subscriber error, got %v", err)
	}
	if src.ApplicationPublished() != 0 || len(sink.topics) != 0 {
		t.Fatalf("failed local dispatch must not be counted or forwarded")
	}
}

func TestSlowPublishLogsExactlyOneWarning(t *testing.T) {
	clock := &stepClock{now: time.Unix(0, 0), step: 600 * time.Millisecond}
	src, hook := newSource(t, mediator.New(), &recordingSink{}, Options{Now: clock.Now})

	if err := src.Publish(context.Background(), newTask().DomainEvents()[0]); err != nil {
		t.Fatalf("publish: %v", err)
	}

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings++
			if e.Data["event"] != "TaskCreated" {
				t.Fatalf("unexpected event field %v", e.Data["event"])
			}
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one warning, got %d", warnings)
	}
}

func TestFastPublishDoesNotWarn(t *testing.T) {
	clock := &stepClock{now: time.Unix(0, 0), step: 100 * time.Millisecond}
	src, hook := newSource(t, mediator.New(), &recordingSink{}, Options{Now: clock.Now})

	if err := src.Publish(context.Background(), newTask().DomainEvents()[0]); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			t.Fatalf("unexpected warning %q", e.Message)
		}
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != log.DebugLevel {
		t.Fatalf("expected debug entry for the publication")
	}
}

func TestNewReusesRegisteredCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := newSource(t, mediator.New(), nil, Options{Registerer: reg})
	b, _ := newSource(t, mediator.New(), nil, Options{Registerer: reg})
	if a.published != b.published {
		t.Fatalf("expected sources to share the registered counter")
	}
}
