package messaging

import (
	"context"
	"sync"
)

// MemoryBus is an in-process binding used by tests and local wiring. Dispatch
// is synchronous and ordered per publish call, which satisfies the per-key
// ordering consumers are allowed to assume. DeliverTwice lets tests exercise
// at-least-once semantics.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, event interface{}) error {
	body, err := encode(event)
	if err != nil {
		return err
	}
	return b.dispatch(ctx, Message{Topic: topic, Key: key, Value: body})
}

// DeliverTwice publishes the event and immediately redelivers the identical
// message, simulating a duplicate from an at-least-once transport.
func (b *MemoryBus) DeliverTwice(ctx context.Context, topic, key string, event interface{}) error {
	body, err := encode(event)
	if err != nil {
		return err
	}
	msg := Message{Topic: topic, Key: key, Value: body}
	if err := b.dispatch(ctx, msg); err != nil {
		return err
	}
	return b.dispatch(ctx, msg)
}

func (b *MemoryBus) dispatch(ctx context.Context, msg Message) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[msg.Topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic, group string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]Handler)
	return nil
}
