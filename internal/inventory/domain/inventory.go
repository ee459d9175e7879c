package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

// ReservationTTL bounds how long a RESERVED hold may wait for its saga to
// resolve before a sweeper may release it.
const ReservationTTL = 15 * time.Minute

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

// InsufficientStockError is a business outcome, not a fault: the caller maps
// it to a conflict rather than a server error.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// Product tracks purchasable stock. Stock is decremented at reserve time, so
// the column always reflects what is still available to new orders.
type Product struct {
	ID       uuid.UUID
	Name     string
	Price    float64
	Stock    int
	Revision int64
}

func (p *Product) ReduceStock(quantity int) error {
	if p.Stock < quantity {
		return &InsufficientStockError{
			ProductID: p.ID,
			Available: p.Stock,
			Requested: quantity,
		}
	}
	p.Stock -= quantity
	return nil
}

func (p *Product) RestoreStock(quantity int) {
	p.Stock += quantity
}

// Reservation is the audit record of one stock hold. Reservations are never
// deleted; terminal rows document how each hold resolved.
type Reservation struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	Status     ReservationStatus
	ReservedAt time.Time
	ExpiresAt  time.Time
	Revision   int64
}

func NewReservation(orderID, productID uuid.UUID, quantity int) *Reservation {
	now := time.Now().UTC()
	return &Reservation{
		ID:         uuid.New(),
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Status:     ReservationStatusReserved,
		ReservedAt: now,
		ExpiresAt:  now.Add(ReservationTTL),
		Revision:   0,
	}
}

func (r *Reservation) Confirm() error {
	if r.Status != ReservationStatusReserved {
		return &shared.InvalidStateTransitionError{
			Entity:    "reservation",
			Current:   string(r.Status),
			Attempted: string(ReservationStatusConfirmed),
		}
	}
	r.Status = ReservationStatusConfirmed
	return nil
}

func (r *Reservation) Release() error {
	if r.Status != ReservationStatusReserved {
		return &shared.InvalidStateTransitionError{
			Entity:    "reservation",
			Current:   string(r.Status),
			Attempted: string(ReservationStatusReleased),
		}
	}
	r.Status = ReservationStatusReleased
	return nil
}

func (r *Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusConfirmed || r.Status == ReservationStatusReleased
}

func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusReserved && now.After(r.ExpiresAt)
}
