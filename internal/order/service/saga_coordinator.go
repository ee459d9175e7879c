package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/order/clients"
	"github.com/quickflux/fulfillment/internal/order/domain"
	"github.com/quickflux/fulfillment/internal/order/repository"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const serviceName = "order-service"

// Updates racing on the same order retry against a fresh load this many
// times before giving up with the version conflict.
const maxUpdateAttempts = 3

var ErrInvalidOrder = errors.New("invalid order request")

// SagaCoordinator drives the two-phase fulfillment saga from the order
// participant. Phase 1 reserves stock and pre-authorizes payment in parallel
// and compensates whichever leg succeeded alone; Phase 2 joins the
// PaymentCaptured and StockConfirmed signals before confirming.
type SagaCoordinator struct {
	orders        repository.OrderRepository
	inventory     clients.InventoryClient
	payments      clients.PaymentClient
	bus           messaging.Bus
	tracker       *JoinTracker
	phase1Timeout time.Duration
	logger        *zap.Logger
}

func NewSagaCoordinator(
	orders repository.OrderRepository,
	inventory clients.InventoryClient,
	payments clients.PaymentClient,
	bus messaging.Bus,
	phase1Timeout time.Duration,
	logger *zap.Logger,
) *SagaCoordinator {
	return &SagaCoordinator{
		orders:        orders,
		inventory:     inventory,
		payments:      payments,
		bus:           bus,
		tracker:       NewJoinTracker(),
		phase1Timeout: phase1Timeout,
		logger:        logger,
	}
}

// CreateOrder runs Phase 1. The order is persisted in CREATED before any
// downstream call so it survives a later failure; the caller gets either a
// PENDING order or an error with the order left CANCELLED.
func (s *SagaCoordinator) CreateOrder(ctx context.Context, userID, productID uuid.UUID, quantity int, unitPrice float64) (*domain.Order, error) {
	if err := validateOrderInput(userID, productID, quantity, unitPrice); err != nil {
		return nil, err
	}

	order := domain.NewOrder(userID, productID, quantity, unitPrice)
	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("order creation error: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.Float64("total_amount", order.TotalAmount))

	result := s.runPhase1(ctx, order)

	switch {
	case result.reservationErr == nil && result.preauthErr == nil:
		return s.completePhase1(ctx, order, result)

	case result.reservationErr != nil && result.preauthErr == nil:
		s.logger.Warn("Reservation failed, voiding pre-auth",
			zap.String("order_id", order.ID.String()),
			zap.String("preauth_id", result.preauth.PreAuthID.String()),
			zap.Error(result.reservationErr))
		s.voidPreAuth(order.ID, result.preauth.PreAuthID)
		s.cancelAfterPhase1(order)
		return nil, fmt.Errorf("stock reservation failed: %w", result.reservationErr)

	case result.preauthErr != nil && result.reservationErr == nil:
		s.logger.Warn("Pre-auth failed, releasing reservation",
			zap.String("order_id", order.ID.String()),
			zap.String("reservation_id", result.reservationID.String()),
			zap.Error(result.preauthErr))
		s.releaseStock(order.ID)
		s.cancelAfterPhase1(order)
		return nil, fmt.Errorf("payment pre-authorization failed: %w", result.preauthErr)

	default:
		s.cancelAfterPhase1(order)
		return nil, fmt.Errorf("stock reservation failed: %v; payment pre-authorization failed: %w",
			result.reservationErr, result.preauthErr)
	}
}

type phase1Result struct {
	reservationID  uuid.UUID
	reservationErr error
	preauth        *clients.PreAuthResult
	preauthErr     error
}

// runPhase1 issues both calls concurrently and waits for both. No
// short-circuit on first failure: the other leg's outcome decides which
// compensation is needed.
func (s *SagaCoordinator) runPhase1(ctx context.Context, order *domain.Order) phase1Result {
	callCtx, cancel := context.WithTimeout(ctx, s.phase1Timeout)
	defer cancel()

	var result phase1Result
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result.reservationID, result.reservationErr = s.inventory.ReserveStock(
			callCtx, order.ID, order.ProductID, order.Quantity)
	}()

	go func() {
		defer wg.Done()
		result.preauth, result.preauthErr = s.payments.PreAuthorizePayment(
			callCtx, order.ID, order.TotalAmount)
	}()

	wg.Wait()
	return result
}

func (s *SagaCoordinator) completePhase1(ctx context.Context, order *domain.Order, result phase1Result) (*domain.Order, error) {
	if err := order.MarkPending(result.reservationID, result.preauth.PreAuthID); err != nil {
		return nil, err
	}
	if err := s.orders.Update(order); err != nil {
		return nil, fmt.Errorf("order update error: %w", err)
	}

	// Correlation id is the order id on every saga topic, so one grep over
	// the logs follows an order across all four services.
	event := events.NewOrderCreated(
		order.ID, serviceName,
		order.ID, order.ProductID, order.Quantity, order.TotalAmount,
		order.UserID, order.ReservationID, order.PaymentPreAuthID,
	)
	if err := s.bus.Publish(ctx, events.TopicOrderCreated, order.ID.String(), event); err != nil {
		// Without the event the saga cannot progress; undo both legs.
		s.logger.Error("OrderCreated publish failed, compensating both legs",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		s.releaseStock(order.ID)
		s.voidPreAuth(order.ID, order.PaymentPreAuthID)
		s.cancelAfterPhase1(order)
		return nil, fmt.Errorf("order event publish error: %w", err)
	}

	s.logger.Info("Phase 1 complete",
		zap.String("order_id", order.ID.String()),
		zap.String("reservation_id", order.ReservationID.String()),
		zap.String("preauth_id", order.PaymentPreAuthID.String()))
	return order, nil
}

// Compensation calls are best-effort: a failure here leaves the entity for
// external reconciliation rather than retrying inside the request.
func (s *SagaCoordinator) voidPreAuth(orderID, preauthID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.phase1Timeout)
	defer cancel()

	if err := s.payments.VoidPreAuth(ctx, preauthID); err != nil {
		s.logger.Error("Compensation failed: pre-auth left dangling, needs reconciliation",
			zap.String("order_id", orderID.String()),
			zap.String("preauth_id", preauthID.String()),
			zap.Error(err))
	}
}

func (s *SagaCoordinator) releaseStock(orderID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.phase1Timeout)
	defer cancel()

	if err := s.inventory.ReleaseStock(ctx, orderID); err != nil {
		s.logger.Error("Compensation failed: reservation left dangling, needs reconciliation",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
}

func (s *SagaCoordinator) cancelAfterPhase1(order *domain.Order) {
	if err := order.Cancel(); err != nil {
		s.logger.Error("Order cancel rejected after Phase 1 failure",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return
	}
	if err := s.orders.Update(order); err != nil {
		s.logger.Error("Order cancel persist error",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

// RecordPaymentCaptured feeds the join tracker; when both signals are in it
// attempts the confirm transition.
func (s *SagaCoordinator) RecordPaymentCaptured(orderID uuid.UUID) error {
	if s.tracker.RecordPaymentCaptured(orderID) {
		return s.confirmOrder(orderID)
	}
	return nil
}

// RecordStockConfirmed feeds the join tracker; when both signals are in it
// attempts the confirm transition.
func (s *SagaCoordinator) RecordStockConfirmed(orderID uuid.UUID) error {
	if s.tracker.RecordStockConfirmed(orderID) {
		return s.confirmOrder(orderID)
	}
	return nil
}

func (s *SagaCoordinator) confirmOrder(orderID uuid.UUID) error {
	// The tracker entry is discarded only once the confirm attempt is
	// resolved; on a persist failure the event stays unacked and the
	// retained entry lets the redelivery retry the join.
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.orders.GetByID(orderID)
		if err != nil {
			return fmt.Errorf("order load error: %w", err)
		}

		if err := order.Confirm(); err != nil {
			var transitionErr *shared.InvalidStateTransitionError
			if errors.As(err, &transitionErr) {
				// Redelivery after the order already reached a terminal
				// state; surfaced but not escalated.
				s.logger.Warn("Confirm skipped",
					zap.String("order_id", orderID.String()),
					zap.String("status", string(order.Status)))
				s.tracker.Discard(orderID)
				return nil
			}
			return err
		}

		err = s.orders.Update(order)
		if err == nil {
			s.logger.Info("Order confirmed", zap.String("order_id", orderID.String()))
			s.tracker.Discard(orderID)
			return nil
		}

		var conflict *shared.VersionConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("order confirm persist error: %w", err)
		}
		// Stale revision: reload and re-evaluate, never rewrite blindly.
	}

	return &shared.VersionConflictError{Entity: "order", ID: orderID.String()}
}

// CancelFromPaymentFailure drives cancellation on a PaymentFailed event. If
// the order already reached CONFIRMED (join raced the failure event), the
// normal guard is bypassed with the explicit force override: once capture is
// known to have failed, holding a CONFIRMED order is wrong regardless of
// ordering.
func (s *SagaCoordinator) CancelFromPaymentFailure(orderID uuid.UUID, reason string) error {
	defer s.tracker.Discard(orderID)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.orders.GetByID(orderID)
		if err != nil {
			return fmt.Errorf("order load error: %w", err)
		}

		transitionErr := order.Cancel()
		if transitionErr != nil {
			if order.Status == domain.OrderStatusCancelled {
				s.logger.Info("Cancel skipped, order already cancelled",
					zap.String("order_id", orderID.String()))
				return nil
			}

			prior := order.ForceCancel()
			s.logger.Warn("Anomaly: payment failed after confirmation, forcing cancellation",
				zap.String("order_id", orderID.String()),
				zap.String("prior_status", string(prior)),
				zap.String("reason", reason))
		}

		err = s.orders.Update(order)
		if err == nil {
			s.logger.Info("Order cancelled",
				zap.String("order_id", orderID.String()),
				zap.String("reason", reason))
			return nil
		}

		var conflict *shared.VersionConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("order cancel persist error: %w", err)
		}
	}

	return &shared.VersionConflictError{Entity: "order", ID: orderID.String()}
}

// GetOrder is an ownership-checked read: an order belonging to another user
// is reported as not found.
func (s *SagaCoordinator) GetOrder(orderID, userID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (s *SagaCoordinator) GetOrdersByUser(userID uuid.UUID) ([]*domain.Order, error) {
	return s.orders.GetByUserID(userID)
}

func validateOrderInput(userID, productID uuid.UUID, quantity int, unitPrice float64) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	}
	if productID == uuid.Nil {
		return fmt.Errorf("%w: product id is required", ErrInvalidOrder)
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrder)
	}
	if unitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidOrder)
	}
	return nil
}
