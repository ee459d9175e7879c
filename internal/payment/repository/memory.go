package repository

import (
	"sync"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/payment/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

// MemoryPaymentRepository mirrors the Postgres repository's revision
// compare-and-swap so tests exercise the optimistic-concurrency paths.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]domain.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[uuid.UUID]domain.Payment)}
}

func (r *MemoryPaymentRepository) Create(payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[payment.ID] = *payment
	return nil
}

func (r *MemoryPaymentRepository) Update(payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return ErrPaymentNotFound
	}
	if stored.Revision != payment.Revision {
		return &shared.VersionConflictError{Entity: "payment", ID: payment.ID.String(), Revision: payment.Revision}
	}

	payment.Revision++
	r.payments[payment.ID] = *payment
	return nil
}

func (r *MemoryPaymentRepository) GetByID(paymentID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	payment := stored
	return &payment, nil
}

func (r *MemoryPaymentRepository) GetByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, stored := range r.payments {
		if stored.OrderID == orderID {
			payment := stored
			return &payment, nil
		}
	}
	return nil, ErrPaymentNotFound
}
