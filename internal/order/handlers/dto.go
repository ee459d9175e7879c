package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/order/domain"
)

type CreateOrderRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

type OrderResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
	UnitPrice        float64   `json:"unit_price"`
	TotalAmount      float64   `json:"total_amount"`
	Status           string    `json:"status"`
	ReservationID    uuid.UUID `json:"reservation_id,omitempty"`
	PaymentPreAuthID uuid.UUID `json:"payment_preauth_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func mapOrder(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:               order.ID,
		UserID:           order.UserID,
		ProductID:        order.ProductID,
		Quantity:         order.Quantity,
		UnitPrice:        order.UnitPrice,
		TotalAmount:      order.TotalAmount,
		Status:           string(order.Status),
		ReservationID:    order.ReservationID,
		PaymentPreAuthID: order.PaymentPreAuthID,
		CreatedAt:        order.CreatedAt,
	}
}

func mapOrders(orders []*domain.Order) []OrderResponse {
	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = mapOrder(order)
	}
	return responses
}
