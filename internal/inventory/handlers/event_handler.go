package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/inventory/service"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/idempotency"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const consumerGroup = "inventory-service"

// EventHandler reacts to the payment outcome: a capture promotes the hold to
// sold, a failure puts the units back. Both paths are guarded by the
// processed-event ledger.
type EventHandler struct {
	inventoryService *service.InventoryService
	ledger           idempotency.Ledger
	logger           *zap.Logger
}

func NewEventHandler(inventoryService *service.InventoryService, ledger idempotency.Ledger, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		inventoryService: inventoryService,
		ledger:           ledger,
		logger:           logger,
	}
}

func (h *EventHandler) StartConsuming(bus messaging.Bus) error {
	if err := bus.Subscribe(events.TopicPaymentCaptured, consumerGroup, h.HandlePaymentCaptured); err != nil {
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

	if err := h.inventoryService.ConfirmReservation(ctx, event.OrderID, event.UserID); err != nil {
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

	if err := h.inventoryService.ReleaseReservation(event.OrderID); err != nil {
		return err
	}
	return h.ledger.MarkProcessed(event.EventID, event.EventType)
}
