package mediator

import (
	"context"
	"errors"
	"testing"
)

type ping struct{ Msg string }

type pinged struct{ N int }

type noticer interface{ Notice() string }

func (p *pinged) Notice() string { return "pinged" }

func TestSendRoutesToRegisteredHandler(t *testing.T) {
	m := New()
	if err := Register(m, func(ctx context.Context, req ping) (string, error) {
		return "pong:" + req.Msg, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := Send[ping, string](context.Background(), m, ping{Msg: "a"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "pong:a" {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := New()
	h := func(ctx context.Context, req ping) (string, error) { return "", nil }
	if err := Register(m, h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(m, h); !errors.Is(err, ErrHandlerExists) {
		t.Fatalf("expected ErrHandlerExists, got %v", err)
	}
}

func TestSendWithoutHandler(t *testing.T) {
	m := New()
	if _, err := Send[ping, string](context.Background(), m, ping{}); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestBehaviorsRunOutermostFirst(t *testing.T) {
	var order []string
	record := func(name string) Behavior {
		return func(ctx context.Context, req any, next Next) (any, error) {
			order = append(order, name+">")
			out, err := next(ctx)
			order = append(order, "<"+name)
			return out, err
		}
	}
	m := New(record("outer"), record("inner"))
	_ = Register(m, func(ctx context.Context, req ping) (int, error) {
		order = append(order, "handler")
		return 1, nil
	})

	if _, err := Send[ping, int](context.Background(), m, ping{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := []string{"outer>", "inner>", "handler", "<inner", "<outer"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestPublishCallsSubscribersInOrder(t *testing.T) {
	m := New()
	var calls []string
	Subscribe(m, func(ctx context.Context, n *pinged) error {
		calls = append(calls, "first")
		return nil
	})
	Subscribe(m, func(ctx context.Context, n noticer) error {
		calls = append(calls, "iface:"+n.Notice())
		return nil
	})
	Subscribe(m, func(ctx context.Context, n ping) error {
		calls = append(calls, "other")
		return nil
	})
	Subscribe(m, func(ctx context.Context, n *pinged) error {
		calls = append(calls, "last")
		return nil
	})

	if err := m.Publish(context.Background(), &pinged{N: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(calls) != 3 || calls[0] != "first" || calls[1] != "iface:pinged" || calls[2] != "last" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestPublishStopsAtFirstError(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	called := false
	Subscribe(m, func(ctx context.Context, n *pinged) error { return boom })
	Subscribe(m, func(ctx context.Context, n *pinged) error {
		called = true
		return nil
	})

	if err := m.Publish(context.Background(), &pinged{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if called {
		t.Fatalf("subscribers after a failure must not run")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	if err := New().Publish(context.Background(), &pinged{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
