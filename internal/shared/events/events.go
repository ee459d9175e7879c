package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic names. Every topic is published with the order id as the message key,
// so delivery is ordered per order within a topic but not across topics.
const (
	TopicOrderCreated    = "order.created"
	TopicPaymentCaptured = "payment.captured"
	TopicPaymentFailed   = "payment.failed"
	TopicStockConfirmed  = "stock.confirmed"
)

const SchemaVersion = "v1"

// Envelope is shared by every event in the catalog. EventID is the
// idempotency handle consumers record in their processed-event ledger.
type Envelope struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	Version       string    `json:"version"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

func newEnvelope(eventType string, correlationID uuid.UUID, source string) Envelope {
	return Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		Version:       SchemaVersion,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Source:        source,
	}
}

type OrderCreated struct {
	Envelope
	OrderID          uuid.UUID `json:"order_id"`
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
	Amount           float64   `json:"amount"`
	UserID           uuid.UUID `json:"user_id"`
	ReservationID    uuid.UUID `json:"reservation_id"`
	PaymentPreAuthID uuid.UUID `json:"payment_preauth_id"`
}

func NewOrderCreated(correlationID uuid.UUID, source string, orderID, productID uuid.UUID,
	quantity int, amount float64, userID, reservationID, preauthID uuid.UUID) OrderCreated {
	return OrderCreated{
		Envelope:         newEnvelope("OrderCreated", correlationID, source),
		OrderID:          orderID,
		ProductID:        productID,
		Quantity:         quantity,
		Amount:           amount,
		UserID:           userID,
		ReservationID:    reservationID,
		PaymentPreAuthID: preauthID,
	}
}

type PaymentCaptured struct {
	Envelope
	OrderID uuid.UUID `json:"order_id"`
	Amount  float64   `json:"amount"`
	UserID  uuid.UUID `json:"user_id"`
}

func NewPaymentCaptured(correlationID uuid.UUID, source string, orderID uuid.UUID,
	amount float64, userID uuid.UUID) PaymentCaptured {
	return PaymentCaptured{
		Envelope: newEnvelope("PaymentCaptured", correlationID, source),
		OrderID:  orderID,
		Amount:   amount,
		UserID:   userID,
	}
}

// PaymentFailed carries the reservation id so the inventory participant can
// release the exact hold taken in Phase 1.
type PaymentFailed struct {
	Envelope
	OrderID       uuid.UUID `json:"order_id"`
	Reason        string    `json:"reason"`
	ReservationID uuid.UUID `json:"reservation_id"`
	UserID        uuid.UUID `json:"user_id"`
}

func NewPaymentFailed(correlationID uuid.UUID, source string, orderID uuid.UUID,
	reason string, reservationID, userID uuid.UUID) PaymentFailed {
	return PaymentFailed{
		Envelope:      newEnvelope("PaymentFailed", correlationID, source),
		OrderID:       orderID,
		Reason:        reason,
		ReservationID: reservationID,
		UserID:        userID,
	}
}

type StockConfirmed struct {
	Envelope
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}

func NewStockConfirmed(correlationID uuid.UUID, source string, orderID, userID uuid.UUID) StockConfirmed {
	return StockConfirmed{
		Envelope: newEnvelope("StockConfirmed", correlationID, source),
		OrderID:  orderID,
		UserID:   userID,
	}
}
