package eventsink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/domain"
)

type batch struct {
	events []domain.Event
	opts   domain.BufferOptions
	timer  *time.Timer
}

// Buffer batches events implementing domain.BufferedEvent per topic. A batch
// is flushed when it reaches its count or after its buffer time, whichever
// comes first. Other events go straight to the wrapped sink.
type Buffer struct {
	next Sink
	log  *log.Logger

	mu      sync.Mutex
	batches map[string]*batch
	closed  bool
	flushWG sync.WaitGroup

	flushed     atomic.Int64
	flushErrors atomic.Int64
}

func NewBuffer(next Sink, logger *log.Logger) *Buffer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Buffer{next: next, log: logger, batches: make(map[string]*batch)}
}

// Flushed returns the number of buffered events delivered to the wrapped sink.
func (b *Buffer) Flushed() int64 { return b.flushed.Load() }

// FlushErrors returns the number of failed batch deliveries.
func (b *Buffer) FlushErrors() int64 { return b.flushErrors.Load() }

// Pending returns the number of events waiting in batches.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, bt := range b.batches {
		n += len(bt.events)
	}
	return n
}

func (b *Buffer) PublishEvent(ctx context.Context, topic string, ev domain.Event) error {
	be, ok := ev.(domain.BufferedEvent)
	if !ok {
		return b.next.PublishEvent(ctx, topic, ev)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.next.PublishEvent(ctx, topic, ev)
	}
	bt, ok := b.batches[topic]
	if !ok {
		bt = &batch{opts: be.BufferOptions()}
		b.batches[topic] = bt
		bt.timer = time.AfterFunc(bt.opts.Time, func() { b.flushExpired(topic, bt) })
	}
	bt.events = append(bt.events, ev)
	if len(bt.events) < bt.opts.Count {
		b.mu.Unlock()
		return nil
	}
	delete(b.batches, topic)
	bt.timer.Stop()
	b.flushWG.Add(1)
	b.mu.Unlock()

	defer b.flushWG.Done()
	b.deliver(topic, bt)
	return nil
}

// PublishBatch forwards events without buffering.
func (b *Buffer) PublishBatch(ctx context.Context, topic string, events []domain.Event) error {
	return b.next.PublishBatch(ctx, topic, events)
}

func (b *Buffer) flushExpired(topic string, bt *batch) {
	b.mu.Lock()
	if b.batches[topic] != bt {
		b.mu.Unlock()
		return
	}
	delete(b.batches, topic)
	b.flushWG.Add(1)
	b.mu.Unlock()

	defer b.flushWG.Done()
	b.deliver(topic, bt)
}

func (b *Buffer) deliver(topic string, bt *batch) error {
	ctx, cancel := context.WithTimeout(context.Background(), bt.opts.PublishTimeout)
	defer cancel()
	return b.publish(ctx, topic, bt)
}

func (b *Buffer) publish(ctx context.Context, topic string, bt *batch) error {
	if err := b.next.PublishBatch(ctx, topic, bt.events); err != nil {
		b.flushErrors.Add(1)
		b.log.WithFields(log.Fields{
			"topic":  topic,
			"events": len(bt.events),
		}).WithError(err).Error("event buffer flush failed")
		return err
	}
	b.flushed.Add(int64(len(bt.events)))
	b.log.WithFields(log.Fields{
		"topic":  topic,
		"events": len(bt.events),
	}).Debug("event buffer flushed")
	return nil
}

// Close flushes every pending batch, waits for in-flight flushes and closes
// the wrapped sink when it has a Close method. Later buffered events are
// published directly.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pending := b.batches
	b.batches = make(map[string]*batch)
	for _, bt := range pending {
		bt.timer.Stop()
	}
	b.mu.Unlock()

	var errs []error
	for topic, bt := range pending {
		flushCtx, cancel := context.WithTimeout(ctx, bt.opts.PublishTimeout)
		errs = append(errs, b.publish(flushCtx, topic, bt))
		cancel()
	}
	b.flushWG.Wait()

	if c, ok := b.next.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
