package repository

import (
	"sync"

	"github.com/google/uuid"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

// MemoryInventoryRepository mirrors the Postgres repository's revision
// compare-and-swap so tests exercise the optimistic-concurrency paths. The
// paired reserve/release writes happen under one mutex section, matching the
// single transaction the Postgres repository uses.
type MemoryInventoryRepository struct {
	mu           sync.RWMutex
	products     map[uuid.UUID]domain.Product
	reservations map[uuid.UUID]domain.Reservation
}

func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{
		products:     make(map[uuid.UUID]domain.Product),
		reservations: make(map[uuid.UUID]domain.Reservation),
	}
}

// SeedProduct installs a product for tests and local wiring.
func (r *MemoryInventoryRepository) SeedProduct(product *domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = *product
}

func (r *MemoryInventoryRepository) GetProductByID(productID uuid.UUID) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	product := stored
	return &product, nil
}

func (r *MemoryInventoryRepository) ReserveStock(product *domain.Product, reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkProduct(product); err != nil {
		return err
	}

	product.Revision++
	r.products[product.ID] = *product
	r.reservations[reservation.ID] = *reservation
	return nil
}

func (r *MemoryInventoryRepository) ReleaseStock(reservation *domain.Reservation, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Both rows are checked before either is written so a conflict on one
	// leaves the other untouched, as a rolled-back transaction would.
	if err := r.checkReservation(reservation); err != nil {
		return err
	}
	if err := r.checkProduct(product); err != nil {
		return err
	}

	reservation.Revision++
	product.Revision++
	r.reservations[reservation.ID] = *reservation
	r.products[product.ID] = *product
	return nil
}

func (r *MemoryInventoryRepository) UpdateReservation(reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkReservation(reservation); err != nil {
		return err
	}

	reservation.Revision++
	r.reservations[reservation.ID] = *reservation
	return nil
}

func (r *MemoryInventoryRepository) GetReservationByOrderID(orderID uuid.UUID) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, stored := range r.reservations {
		if stored.OrderID == orderID {
			reservation := stored
			return &reservation, nil
		}
	}
	return nil, ErrReservationNotFound
}

func (r *MemoryInventoryRepository) checkProduct(product *domain.Product) error {
	stored, ok := r.products[product.ID]
	if !ok {
		return ErrProductNotFound
	}
	if stored.Revision != product.Revision {
		return &shared.VersionConflictError{Entity: "product", ID: product.ID.String(), Revision: product.Revision}
	}
	return nil
}

func (r *MemoryInventoryRepository) checkReservation(reservation *domain.Reservation) error {
	stored, ok := r.reservations[reservation.ID]
	if !ok {
		return ErrReservationNotFound
	}
	if stored.Revision != reservation.Revision {
		return &shared.VersionConflictError{Entity: "reservation", ID: reservation.ID.String(), Revision: reservation.Revision}
	}
	return nil
}
