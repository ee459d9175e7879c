package domain

import (
	"time"

	"github.com/google/uuid"

	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

type PaymentStatus string

const (
	PaymentStatusPreAuthorized PaymentStatus = "PRE_AUTHORIZED"
	PaymentStatusCaptured      PaymentStatus = "CAPTURED"
	PaymentStatusFailed        PaymentStatus = "FAILED"
)

// Payment records one pre-authorization and its resolution. Its ID doubles as
// the preauth id the order participant stores and quotes back.
type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        float64
	Status        PaymentStatus
	GatewayRef    string
	FailureReason string
	CreatedAt     time.Time
	Revision      int64
}

func NewPayment(orderID uuid.UUID, amount float64, gatewayRef string) *Payment {
	return &Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		Amount:     amount,
		Status:     PaymentStatusPreAuthorized,
		GatewayRef: gatewayRef,
		CreatedAt:  time.Now().UTC(),
	}
}

// MarkCaptured is legal only from PRE_AUTHORIZED. A repeated capture on an
// already-captured payment surfaces as a transition error the caller treats
// as a no-op.
func (p *Payment) MarkCaptured() error {
	if p.Status != PaymentStatusPreAuthorized {
		return p.transitionError(PaymentStatusCaptured)
	}
	p.Status = PaymentStatusCaptured
	return nil
}

// MarkFailed resolves the pre-authorization negatively, covering both a
// declined capture and an explicit void.
func (p *Payment) MarkFailed(reason string) error {
	if p.Status != PaymentStatusPreAuthorized {
		return p.transitionError(PaymentStatusFailed)
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	return nil
}

func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCaptured || p.Status == PaymentStatusFailed
}

func (p *Payment) transitionError(attempted PaymentStatus) error {
	return &shared.InvalidStateTransitionError{
		Entity:    "payment",
		Current:   string(p.Status),
		Attempted: string(attempted),
	}
}
