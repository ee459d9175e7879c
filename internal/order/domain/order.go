package domain

import (
	"time"

	"github.com/google/uuid"

	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is owned and mutated exclusively by the order participant. Other
// participants see it only through the ids carried inside events.
type Order struct {
	ID               uuid.UUID   `json:"id"`
	UserID           uuid.UUID   `json:"user_id"`
	ProductID        uuid.UUID   `json:"product_id"`
	Quantity         int         `json:"quantity"`
	UnitPrice        float64     `json:"unit_price"`
	TotalAmount      float64     `json:"total_amount"`
	Status           OrderStatus `json:"status"`
	ReservationID    uuid.UUID   `json:"reservation_id,omitempty"`
	PaymentPreAuthID uuid.UUID   `json:"payment_preauth_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	Revision         int64       `json:"revision"`
}

func NewOrder(userID, productID uuid.UUID, quantity int, unitPrice float64) *Order {
	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		ProductID:   productID,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalAmount: unitPrice * float64(quantity),
		Status:      OrderStatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
}

// MarkPending records the two Phase-1 references. Only a CREATED order whose
// both legs succeeded moves to PENDING.
func (o *Order) MarkPending(reservationID, preauthID uuid.UUID) error {
	if o.Status != OrderStatusCreated {
		return o.transitionError(OrderStatusPending)
	}
	o.Status = OrderStatusPending
	o.ReservationID = reservationID
	o.PaymentPreAuthID = preauthID
	return nil
}

// Confirm is legal only from PENDING, once both Phase-2 signals have joined.
func (o *Order) Confirm() error {
	if o.Status != OrderStatusPending {
		return o.transitionError(OrderStatusConfirmed)
	}
	o.Status = OrderStatusConfirmed
	return nil
}

// Cancel is legal from CREATED or PENDING. A CONFIRMED order is rejected
// here; the late-PaymentFailed race goes through ForceCancel instead.
func (o *Order) Cancel() error {
	if o.Status == OrderStatusConfirmed || o.Status == OrderStatusCancelled {
		return o.transitionError(OrderStatusCancelled)
	}
	o.Status = OrderStatusCancelled
	return nil
}

// ForceCancel bypasses the state-machine guard. It exists for exactly one
// case: a PaymentFailed observed after the order was already confirmed, where
// holding a CONFIRMED order would be wrong regardless of event ordering. It
// returns the prior status so the caller can flag the anomaly.
func (o *Order) ForceCancel() OrderStatus {
	prior := o.Status
	o.Status = OrderStatusCancelled
	return prior
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusCancelled
}

func (o *Order) transitionError(attempted OrderStatus) error {
	return &shared.InvalidStateTransitionError{
		Entity:    "order",
		Current:   string(o.Status),
		Attempted: string(attempted),
	}
}
