package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is the transport-agnostic unit of delivery. Key is the partition
// key (the order id in string form for every saga topic).
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler processes one delivery. Returning an error leaves the message
// un-acked so the binding can redeliver it; handlers must therefore be
// idempotent (see the processed-event ledger).
type Handler func(ctx context.Context, msg Message) error

// Bus is the event-bus capability the participants depend on. Bindings exist
// for Kafka, RabbitMQ and an in-process variant used by tests.
type Bus interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
	Subscribe(topic, group string, handler Handler) error
	Close() error
}

func encode(event interface{}) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("event serialization error: %w", err)
	}
	return body, nil
}
