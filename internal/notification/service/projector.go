package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const consumerGroup = "notification-service"

// Projector turns saga events into user-facing messages. It deliberately
// carries no processed-event ledger: the projection is display-only, so a
// duplicate message costs nothing and the ledger's write amplification is
// not worth it here.
type Projector struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewProjector(notifier Notifier, logger *zap.Logger) *Projector {
	return &Projector{
		notifier: notifier,
		logger:   logger,
	}
}

func (p *Projector) StartConsuming(bus messaging.Bus) error {
	subscriptions := map[string]messaging.Handler{
		events.TopicOrderCreated:    p.HandleOrderCreated,
		events.TopicPaymentCaptured: p.HandlePaymentCaptured,
		events.TopicPaymentFailed:   p.HandlePaymentFailed,
		events.TopicStockConfirmed:  p.HandleStockConfirmed,
	}

	for topic, handler := range subscriptions {
		if err := bus.Subscribe(topic, consumerGroup, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) HandleOrderCreated(ctx context.Context, msg messaging.Message) error {
	var event events.OrderCreated
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("order created decode error: %w", err)
	}

	return p.notifier.Notify(UserMessage{
		Type:      "ORDER_CREATED",
		OrderID:   event.OrderID,
		Status:    "PENDING",
		Timestamp: time.Now().UTC(),
	})
}

func (p *Projector) HandlePaymentCaptured(ctx context.Context, msg messaging.Message) error {
	var event events.PaymentCaptured
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("payment captured decode error: %w", err)
	}

	return p.notifier.Notify(UserMessage{
		Type:      "PAYMENT_CAPTURED",
		OrderID:   event.OrderID,
		Status:    "PAYMENT_COMPLETED",
		Timestamp: time.Now().UTC(),
	})
}

func (p *Projector) HandlePaymentFailed(ctx context.Context, msg messaging.Message) error {
	var event events.PaymentFailed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("payment failed decode error: %w", err)
	}

	return p.notifier.Notify(UserMessage{
		Type:      "ORDER_FAILED",
		OrderID:   event.OrderID,
		Status:    "CANCELLED",
		Reason:    event.Reason,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Projector) HandleStockConfirmed(ctx context.Context, msg messaging.Message) error {
	var event events.StockConfirmed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("stock confirmed decode error: %w", err)
	}

	return p.notifier.Notify(UserMessage{
		Type:      "ORDER_CONFIRMED",
		OrderID:   event.OrderID,
		Status:    "CONFIRMED",
		Timestamp: time.Now().UTC(),
	})
}
