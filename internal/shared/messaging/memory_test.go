package messaging

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	var a, b int
	bus.Subscribe("order.created", "group-a", func(ctx context.Context, msg Message) error {
		a++
		return nil
	})
	bus.Subscribe("order.created", "group-b", func(ctx context.Context, msg Message) error {
		b++
		return nil
	})
	bus.Subscribe("payment.failed", "group-a", func(ctx context.Context, msg Message) error {
		t.Error("wrong topic delivered")
		return nil
	})

	if err := bus.Publish(context.Background(), "order.created", "key", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != 1 || b != 1 {
		t.Errorf("expected one delivery per subscriber, got a=%d b=%d", a, b)
	}
}

func TestMemoryBusDeliverTwice(t *testing.T) {
	bus := NewMemoryBus()

	var seen []string
	bus.Subscribe("order.created", "group", func(ctx context.Context, msg Message) error {
		seen = append(seen, msg.Key)
		return nil
	})

	if err := bus.DeliverTwice(context.Background(), "order.created", "order-1", map[string]string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 2 || seen[0] != "order-1" || seen[1] != "order-1" {
		t.Errorf("expected identical duplicate delivery, got %v", seen)
	}
}

func TestMemoryBusPropagatesHandlerError(t *testing.T) {
	bus := NewMemoryBus()
	wantErr := errors.New("handler failure")
	bus.Subscribe("order.created", "group", func(ctx context.Context, msg Message) error {
		return wantErr
	})

	err := bus.Publish(context.Background(), "order.created", "key", map[string]string{})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected handler error, got %v", err)
	}
}
