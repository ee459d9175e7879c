package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/payment/service"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/idempotency"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const consumerGroup = "payment-service"

// EventHandler captures the pre-authorization when OrderCreated announces a
// completed Phase 1. Idempotency is layered: the ledger drops exact
// duplicates, and the capture path itself converges on redelivery through
// the payment's terminal state and the gateway key.
type EventHandler struct {
	paymentService *service.PaymentService
	ledger         idempotency.Ledger
	logger         *zap.Logger
}

func NewEventHandler(paymentService *service.PaymentService, ledger idempotency.Ledger, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		paymentService: paymentService,
		ledger:         ledger,
		logger:         logger,
	}
}

func (h *EventHandler) StartConsuming(bus messaging.Bus) error {
	return bus.Subscribe(events.TopicOrderCreated, consumerGroup, h.HandleOrderCreated)
}

func (h *EventHandler) HandleOrderCreated(ctx context.Context, msg messaging.Message) error {
	var event events.OrderCreated
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("order created decode error: %w", err)
	}

	processed, err := h.ledger.IsProcessed(event.EventID)
	if err != nil {
		return err
	}
	if processed {
		h.logger.Debug("Duplicate OrderCreated skipped",
			zap.String("event_id", event.EventID.String()),
			zap.String("order_id", event.OrderID.String()))
		return nil
	}

	if err := h.paymentService.Capture(ctx, event.PaymentPreAuthID, event.UserID, event.ReservationID); err != nil {
		return err
	}
	return h.ledger.MarkProcessed(event.EventID, event.EventType)
}
