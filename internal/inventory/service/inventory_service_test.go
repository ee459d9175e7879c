package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
	"github.com/quickflux/fulfillment/internal/inventory/repository"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

func newTestService(stock int) (*InventoryService, *repository.MemoryInventoryRepository, uuid.UUID, *messaging.MemoryBus) {
	repo := repository.NewMemoryInventoryRepository()
	productID := uuid.New()
	repo.SeedProduct(&domain.Product{ID: productID, Name: "widget", Price: 10.00, Stock: stock})

	bus := messaging.NewMemoryBus()
	return NewInventoryService(repo, bus, zap.NewNop()), repo, productID, bus
}

func TestReserveStockReducesStock(t *testing.T) {
	svc, repo, productID, _ := newTestService(5)

	reservation, err := svc.ReserveStock(uuid.New(), productID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reservation.Status != domain.ReservationStatusReserved {
		t.Errorf("expected RESERVED, got %s", reservation.Status)
	}

	product, _ := repo.GetProductByID(productID)
	if product.Stock != 2 {
		t.Errorf("expected stock 2, got %d", product.Stock)
	}
}

func TestReserveStockInsufficient(t *testing.T) {
	svc, repo, productID, _ := newTestService(2)

	_, err := svc.ReserveStock(uuid.New(), productID, 3)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	product, _ := repo.GetProductByID(productID)
	if product.Stock != 2 {
		t.Errorf("failed reservation must not change stock, got %d", product.Stock)
	}
}

func TestReserveStockIdempotentPerOrder(t *testing.T) {
	svc, repo, productID, _ := newTestService(5)
	orderID := uuid.New()

	first, err := svc.ReserveStock(orderID, productID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ReserveStock(orderID, productID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Error("retried reservation must return the existing hold")
	}
	product, _ := repo.GetProductByID(productID)
	if product.Stock != 2 {
		t.Errorf("retry must not double-reserve, stock %d", product.Stock)
	}
}

func TestConfirmReservationPublishesStockConfirmed(t *testing.T) {
	svc, repo, productID, bus := newTestService(5)
	orderID := uuid.New()

	var published int
	bus.Subscribe("stock.confirmed", "test", func(ctx context.Context, msg messaging.Message) error {
		published++
		return nil
	})

	if _, err := svc.ReserveStock(orderID, productID, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.ConfirmReservation(context.Background(), orderID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if published != 1 {
		t.Errorf("expected 1 StockConfirmed, got %d", published)
	}

	reservation, _ := repo.GetReservationByOrderID(orderID)
	if reservation.Status != domain.ReservationStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", reservation.Status)
	}
	product, _ := repo.GetProductByID(productID)
	if product.Stock != 3 {
		t.Errorf("confirm must not touch stock, got %d", product.Stock)
	}
}

func TestReleaseReservationRestoresStockOnce(t *testing.T) {
	svc, repo, productID, _ := newTestService(5)
	orderID := uuid.New()

	if _, err := svc.ReserveStock(orderID, productID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.ReleaseReservation(orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	product, _ := repo.GetProductByID(productID)
	if product.Stock != 5 {
		t.Errorf("expected stock restored to 5, got %d", product.Stock)
	}

	// Second release is a no-op, not a double restore.
	if err := svc.ReleaseReservation(orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	product, _ = repo.GetProductByID(productID)
	if product.Stock != 5 {
		t.Errorf("duplicate release must not change stock, got %d", product.Stock)
	}
}

func TestReleaseWithoutReservationIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(5)
	if err := svc.ReleaseReservation(uuid.New()); err != nil {
		t.Errorf("release with no reservation should be a no-op, got %v", err)
	}
}

// faultingInventoryRepository injects transient failures into the paired
// writes so tests can assert a failed attempt leaves no partial state.
type faultingInventoryRepository struct {
	*repository.MemoryInventoryRepository
	failReserve int
	failRelease int
}

func (r *faultingInventoryRepository) ReserveStock(product *domain.Product, reservation *domain.Reservation) error {
	if r.failReserve > 0 {
		r.failReserve--
		return errors.New("connection reset")
	}
	return r.MemoryInventoryRepository.ReserveStock(product, reservation)
}

func (r *faultingInventoryRepository) ReleaseStock(reservation *domain.Reservation, product *domain.Product) error {
	if r.failRelease > 0 {
		r.failRelease--
		return errors.New("connection reset")
	}
	return r.MemoryInventoryRepository.ReleaseStock(reservation, product)
}

func TestReleaseFailureLeavesReservationHeld(t *testing.T) {
	memory := repository.NewMemoryInventoryRepository()
	productID := uuid.New()
	memory.SeedProduct(&domain.Product{ID: productID, Name: "widget", Price: 10.00, Stock: 5})
	repo := &faultingInventoryRepository{MemoryInventoryRepository: memory, failRelease: 1}
	svc := NewInventoryService(repo, messaging.NewMemoryBus(), zap.NewNop())
	orderID := uuid.New()

	if _, err := svc.ReserveStock(orderID, productID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.ReleaseReservation(orderID); err == nil {
		t.Fatal("expected the faulted release to surface an error")
	}

	// Nothing committed: the hold is still live and the units still out,
	// so the redelivered release can run the whole thing again.
	reservation, _ := memory.GetReservationByOrderID(orderID)
	if reservation.Status != domain.ReservationStatusReserved {
		t.Fatalf("failed release must not flip the reservation, got %s", reservation.Status)
	}
	product, _ := memory.GetProductByID(productID)
	if product.Stock != 2 {
		t.Fatalf("failed release must not touch stock, got %d", product.Stock)
	}

	if err := svc.ReleaseReservation(orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reservation, _ = memory.GetReservationByOrderID(orderID)
	if reservation.Status != domain.ReservationStatusReleased {
		t.Errorf("expected RELEASED, got %s", reservation.Status)
	}
	product, _ = memory.GetProductByID(productID)
	if product.Stock != 5 {
		t.Errorf("expected stock restored to 5, got %d", product.Stock)
	}
}

func TestReserveFailureLeavesStockIntact(t *testing.T) {
	memory := repository.NewMemoryInventoryRepository()
	productID := uuid.New()
	memory.SeedProduct(&domain.Product{ID: productID, Name: "widget", Price: 10.00, Stock: 5})
	repo := &faultingInventoryRepository{MemoryInventoryRepository: memory, failReserve: 1}
	svc := NewInventoryService(repo, messaging.NewMemoryBus(), zap.NewNop())
	orderID := uuid.New()

	if _, err := svc.ReserveStock(orderID, productID, 3); err == nil {
		t.Fatal("expected the faulted reserve to surface an error")
	}

	product, _ := memory.GetProductByID(productID)
	if product.Stock != 5 {
		t.Fatalf("failed reserve must not decrement stock, got %d", product.Stock)
	}
	if _, err := memory.GetReservationByOrderID(orderID); !errors.Is(err, repository.ErrReservationNotFound) {
		t.Fatalf("failed reserve must not leave a reservation row, got %v", err)
	}

	if _, err := svc.ReserveStock(orderID, productID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	product, _ = memory.GetProductByID(productID)
	if product.Stock != 2 {
		t.Errorf("expected stock 2 after retry, got %d", product.Stock)
	}
}

func TestConfirmSkipsReleasedReservation(t *testing.T) {
	svc, repo, productID, bus := newTestService(5)
	orderID := uuid.New()

	var published int
	bus.Subscribe("stock.confirmed", "test", func(ctx context.Context, msg messaging.Message) error {
		published++
		return nil
	})

	svc.ReserveStock(orderID, productID, 2)
	svc.ReleaseReservation(orderID)

	if err := svc.ConfirmReservation(context.Background(), orderID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 0 {
		t.Error("released reservation must not announce StockConfirmed")
	}

	reservation, _ := repo.GetReservationByOrderID(orderID)
	if reservation.Status != domain.ReservationStatusReleased {
		t.Errorf("expected RELEASED, got %s", reservation.Status)
	}
}
