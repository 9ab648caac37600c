package domain

import "time"

const (
	DefaultBufferCount    = 1000
	DefaultBufferTime     = time.Second
	DefaultPublishTimeout = 10 * time.Second
)

// BufferOptions are batching hints for infrastructure sinks. Nothing in the
// event source enforces them.
type BufferOptions struct {
	Count          int
	Time           time.Duration
	PublishTimeout time.Duration
}

// BufferedEvent is an event that infrastructure may publish in batches.
type BufferedEvent interface {
	Event
	BufferOptions() BufferOptions
}

// BufferedDomainEvent is the header for events that tolerate batched delivery.
type BufferedDomainEvent struct {
	DomainEvent
	BufferCount    int           `json:"bufferCount"`
	BufferTime     time.Duration `json:"bufferTime"`
	PublishTimeout time.Duration `json:"publishTimeout"`
}

// NewBufferedDomainEvent builds a buffered event header with default hints.
func NewBufferedDomainEvent(source Entity, subject string) BufferedDomainEvent {
	return BufferedDomainEvent{
		DomainEvent:    NewDomainEvent(source, subject),
		BufferCount:    DefaultBufferCount,
		BufferTime:     DefaultBufferTime,
		PublishTimeout: DefaultPublishTimeout,
	}
}

func (e *BufferedDomainEvent) BufferOptions() BufferOptions {
	opts := BufferOptions{Count: e.BufferCount, Time: e.BufferTime, PublishTimeout: e.PublishTimeout}
	if opts.Count <= 0 {
		opts.Count = DefaultBufferCount
	}
	if opts.Time <= 0 {
		opts.Time = DefaultBufferTime
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	return opts
}
