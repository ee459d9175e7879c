package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
	"github.com/quickflux/fulfillment/internal/inventory/repository"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const serviceName = "inventory-service"

const maxUpdateAttempts = 3

// InventoryService owns the stock and reservation state machines. Stock is
// decremented when the hold is taken, so a confirm only flips the
// reservation's status and a release puts the units back.
type InventoryService struct {
	repo   repository.InventoryRepository
	bus    messaging.Bus
	logger *zap.Logger
}

func NewInventoryService(repo repository.InventoryRepository, bus messaging.Bus, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		repo:   repo,
		bus:    bus,
		logger: logger,
	}
}

// ReserveStock takes a hold for the order. A repeated call for the same order
// returns the existing reservation instead of double-reserving; the order id
// acts as the idempotency key for Phase 1 retries.
func (s *InventoryService) ReserveStock(orderID, productID uuid.UUID, quantity int) (*domain.Reservation, error) {
	if existing, err := s.repo.GetReservationByOrderID(orderID); err == nil {
		s.logger.Info("Reservation already exists for order",
			zap.String("order_id", orderID.String()),
			zap.String("reservation_id", existing.ID.String()))
		return existing, nil
	} else if !errors.Is(err, repository.ErrReservationNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		product, err := s.repo.GetProductByID(productID)
		if err != nil {
			return nil, err
		}

		if err := product.ReduceStock(quantity); err != nil {
			return nil, err
		}

		reservation := domain.NewReservation(orderID, productID, quantity)
		err = s.repo.ReserveStock(product, reservation)
		if err == nil {
			s.logger.Info("Stock reserved",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", productID.String()),
				zap.Int("quantity", quantity),
				zap.Int("remaining_stock", product.Stock))
			return reservation, nil
		}

		var conflict *shared.VersionConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		// Lost the race for the last units; reload and re-check.
	}

	return nil, &shared.VersionConflictError{Entity: "product", ID: productID.String()}
}

// ConfirmReservation marks the order's hold as sold and announces it with a
// StockConfirmed event. A hold already in a terminal state is left untouched.
func (s *InventoryService) ConfirmReservation(ctx context.Context, orderID, userID uuid.UUID) error {
	reservation, err := s.repo.GetReservationByOrderID(orderID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			// A captured payment implies a reservation was taken; missing
			// rows point at a data problem, not something a retry fixes.
			s.logger.Error("Invariant violation: captured payment with no reservation",
				zap.String("order_id", orderID.String()))
			return nil
		}
		return err
	}

	if err := reservation.Confirm(); err != nil {
		var transitionErr *shared.InvalidStateTransitionError
		if !errors.As(err, &transitionErr) {
			return err
		}
		if reservation.Status == domain.ReservationStatusReleased {
			s.logger.Warn("Confirm skipped, reservation already released",
				zap.String("order_id", orderID.String()))
			return nil
		}
		// Already CONFIRMED: a redelivery after the row was updated but
		// before the event went out. Fall through and publish again; the
		// order participant's terminal-state skip absorbs the repeat.
	} else if err := s.repo.UpdateReservation(reservation); err != nil {
		return err
	}

	event := events.NewStockConfirmed(orderID, serviceName, orderID, userID)
	if err := s.bus.Publish(ctx, events.TopicStockConfirmed, orderID.String(), event); err != nil {
		return fmt.Errorf("stock confirmed publish error: %w", err)
	}

	s.logger.Info("Reservation confirmed",
		zap.String("order_id", orderID.String()),
		zap.String("reservation_id", reservation.ID.String()))
	return nil
}

// ReleaseReservation returns the held units to stock. The status flip and the
// stock restore commit in one transaction, so the reservation only reads
// RELEASED once the units are back and a failed attempt can be redelivered
// whole. Safe to call twice: a terminal reservation is skipped without
// touching the product.
func (s *InventoryService) ReleaseReservation(orderID uuid.UUID) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		reservation, err := s.repo.GetReservationByOrderID(orderID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				s.logger.Info("Release skipped, no reservation for order",
					zap.String("order_id", orderID.String()))
				return nil
			}
			return err
		}

		if err := reservation.Release(); err != nil {
			var transitionErr *shared.InvalidStateTransitionError
			if errors.As(err, &transitionErr) {
				s.logger.Info("Release skipped, reservation already resolved",
					zap.String("order_id", orderID.String()),
					zap.String("status", string(reservation.Status)))
				return nil
			}
			return err
		}

		product, err := s.repo.GetProductByID(reservation.ProductID)
		if err != nil {
			return err
		}
		product.RestoreStock(reservation.Quantity)

		err = s.repo.ReleaseStock(reservation, product)
		if err == nil {
			s.logger.Info("Reservation released",
				zap.String("order_id", orderID.String()),
				zap.String("reservation_id", reservation.ID.String()),
				zap.Int("quantity", reservation.Quantity))
			return nil
		}

		var conflict *shared.VersionConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		// A concurrent writer touched the product or the reservation;
		// reload both and re-check.
	}

	return &shared.VersionConflictError{Entity: "reservation", ID: orderID.String()}
}

func (s *InventoryService) GetProduct(productID uuid.UUID) (*domain.Product, error) {
	return s.repo.GetProductByID(productID)
}
