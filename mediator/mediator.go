package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrNoHandler     = errors.New("mediator: no handler registered")
	ErrHandlerExists = errors.New("mediator: handler already registered")
)

// HandlerFunc handles one request type.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Next invokes the rest of the pipeline.
type Next func(ctx context.Context) (any, error)

// Behavior wraps request handling. Behaviors run in the order they were
// passed to New, the first one being the outermost.
type Behavior func(ctx context.Context, req any, next Next) (any, error)

// Publisher dispatches notifications to in-process subscribers.
type Publisher interface {
	Publish(ctx context.Context, notification any) error
}

type subscription struct {
	typ reflect.Type
	fn  func(context.Context, any) error
}

// Mediator routes requests to their single handler and notifications to all
// of their subscribers.
type Mediator struct {
	mu          sync.RWMutex
	handlers    map[reflect.Type]func(context.Context, any) (any, error)
	subscribers []subscription
	behaviors   []Behavior
}

func New(behaviors ...Behavior) *Mediator {
	return &Mediator{
		handlers:  make(map[reflect.Type]func(context.Context, any) (any, error)),
		behaviors: behaviors,
	}
}

// Register installs h as the handler for Req.
func Register[Req, Resp any](m *Mediator, h HandlerFunc[Req, Resp]) error {
	typ := reflect.TypeOf((*Req)(nil)).Elem()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[typ]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, typ)
	}
	m.handlers[typ] = func(ctx context.Context, req any) (any, error) {
		return h(ctx, req.(Req))
	}
	return nil
}

// Send runs req through the pipeline behaviors and its handler.
func Send[Req, Resp any](ctx context.Context, m *Mediator, req Req) (Resp, error) {
	var zero Resp
	typ := reflect.TypeOf((*Req)(nil)).Elem()

	m.mu.RLock()
	h, ok := m.handlers[typ]
	behaviors := m.behaviors
	m.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNoHandler, typ)
	}

	next := Next(func(ctx context.Context) (any, error) {
		return h(ctx, req)
	})
	for i := len(behaviors) - 1; i >= 0; i-- {
		b, inner := behaviors[i], next
		next = func(ctx context.Context) (any, error) {
			return b(ctx, req, inner)
		}
	}

	out, err := next(ctx)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	resp, ok := out.(Resp)
	if !ok {
		return zero, fmt.Errorf("mediator: handler for %s returned %T", typ, out)
	}
	return resp, nil
}

// Subscribe registers h for notifications of type N. When N is an interface,
// h receives every notification implementing it.
func Subscribe[N any](m *Mediator, h func(ctx context.Context, n N) error) {
	typ := reflect.TypeOf((*N)(nil)).Elem()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, subscription{
		typ: typ,
		fn: func(ctx context.Context, n any) error {
			return h(ctx, n.(N))
		},
	})
}

// Publish calls the subscribers of notification in registration order and
// stops at the first error.
func (m *Mediator) Publish(ctx context.Context, notification any) error {
	if notification == nil {
		return nil
	}
	typ := reflect.TypeOf(notification)

	m.mu.RLock()
	subs := make([]subscription, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		if s.typ == typ || (s.typ.Kind() == reflect.Interface && typ.Implements(s.typ)) {
			subs = append(subs, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.fn(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

func requestName(req any) string {
	t := reflect.TypeOf(req)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
