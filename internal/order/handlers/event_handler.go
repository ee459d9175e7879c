package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/order/service"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/idempotency"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const consumerGroup = "order-service"

// EventHandler consumes the Phase 2 signals addressed to the order
// participant. Every handler checks the processed-event ledger before acting
// and marks the event only after its effects are applied, so a redelivered
// event is acked without a second effect.
type EventHandler struct {
	coordinator *service.SagaCoordinator
	ledger      idempotency.Ledger
	logger      *zap.Logger
}

func NewEventHandler(coordinator *service.SagaCoordinator, ledger idempotency.Ledger, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		coordinator: coordinator,
		ledger:      ledger,
		logger:      logger,
	}
}

func (h *EventHandler) StartConsuming(bus messaging.Bus) error {
	if err := bus.Subscribe(events.TopicPaymentCaptured, consumerGroup, h.HandlePaymentCaptured); err != nil {
		return err
	}
	if err := bus.Subscribe(events.TopicStockConfirmed, consumerGroup, h.HandleStockConfirmed); err != nil {
		return err
	}
	return bus.Subscribe(events.TopicPaymentFailed, consumerGroup, h.HandlePaymentFailed)
}

func (h *EventHandler) HandlePaymentCaptured(ctx context.Context, msg messaging.Message) error {
	var event events.PaymentCaptured
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("payment captured decode error: %w", err)
	}

	processed, err := h.ledger.IsProcessed(event.EventID)
	if err != nil {
		return err
	}
	if processed {
		h.logger.Debug("Duplicate PaymentCaptured skipped",
			zap.String("event_id", event.EventID.String()),
			zap.String("order_id", event.OrderID.String()))
		return nil
	}

	if err := h.coordinator.RecordPaymentCaptured(event.OrderID); err != nil {
		return err
	}
	return h.ledger.MarkProcessed(event.EventID, event.EventType)
}

func (h *EventHandler) HandleStockConfirmed(ctx context.Context, msg messaging.Message) error {
	var event events.StockConfirmed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("stock confirmed decode error: %w", err)
	}

	processed, err := h.ledger.IsProcessed(event.EventID)
	if err != nil {
		return err
	}
	if processed {
		h.logger.Debug("Duplicate StockConfirmed skipped",
			zap.String("event_id", event.EventID.String()),
			zap.String("order_id", event.OrderID.String()))
		return nil
	}

	if err := h.coordinator.RecordStockConfirmed(event.OrderID); err != nil {
		return err
	}
	return h.ledger.MarkProcessed(event.EventID, event.EventType)
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, msg messaging.Message) error {
	var event events.PaymentFailed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("payment failed decode error: %w", err)
	}

	processed, err := h.ledger.IsProcessed(event.EventID)
	if err != nil {
		return err
	}
	if processed {
		h.logger.Debug("Duplicate PaymentFailed skipped",
			zap.String("event_id", event.EventID.String()),
			zap.String("order_id", event.OrderID.String()))
		return nil
	}

	if err := h.coordinator.CancelFromPaymentFailure(event.OrderID, event.Reason); err != nil {
		return err
	}
	return h.ledger.MarkProcessed(event.EventID, event.EventType)
}
