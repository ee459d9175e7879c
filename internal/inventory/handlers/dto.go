package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
)

type ReserveStockRequest struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type ReleaseStockRequest struct {
	OrderID uuid.UUID `json:"order_id"`
}

type ReservationResponse struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type ProductResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price float64   `json:"price"`
	Stock int       `json:"stock"`
}

func mapReservation(reservation *domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		ProductID:     reservation.ProductID,
		Quantity:      reservation.Quantity,
		Status:        string(reservation.Status),
		ExpiresAt:     reservation.ExpiresAt,
	}
}

func mapProduct(product *domain.Product) ProductResponse {
	return ProductResponse{
		ID:    product.ID,
		Name:  product.Name,
		Price: product.Price,
		Stock: product.Stock,
	}
}
