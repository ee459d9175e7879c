package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/payment/domain"
)

type PreAuthorizeRequest struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  float64   `json:"amount"`
}

type CaptureRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

// PreAuthorizeResponse matches what the order participant's client decodes.
type PreAuthorizeResponse struct {
	PreAuthID  uuid.UUID `json:"preauth_id"`
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	GatewayRef    string    `json:"gateway_ref"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func mapPreAuth(payment *domain.Payment) PreAuthorizeResponse {
	return PreAuthorizeResponse{
		PreAuthID:  payment.ID,
		GatewayRef: payment.GatewayRef,
		Status:     string(payment.Status),
	}
}

func mapPayment(payment *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Status:        string(payment.Status),
		GatewayRef:    payment.GatewayRef,
		FailureReason: payment.FailureReason,
		CreatedAt:     payment.CreatedAt,
	}
}
