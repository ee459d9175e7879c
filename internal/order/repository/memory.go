package repository

import (
	"sync"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/order/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

// MemoryOrderRepository keeps the same revision compare-and-swap semantics as
// the Postgres repository so tests exercise the optimistic-concurrency paths.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]domain.Order)}
}

func (r *MemoryOrderRepository) Create(order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) Update(order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Revision != order.Revision {
		return &shared.VersionConflictError{Entity: "order", ID: order.ID.String(), Revision: order.Revision}
	}

	order.Revision++
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) GetByID(orderID uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	order := stored
	return &order, nil
}

func (r *MemoryOrderRepository) GetByUserID(userID uuid.UUID) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*domain.Order
	for _, stored := range r.orders {
		if stored.UserID == userID {
			order := stored
			orders = append(orders, &order)
		}
	}
	return orders, nil
}
