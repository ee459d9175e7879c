package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/payment/domain"
	"github.com/quickflux/fulfillment/internal/payment/gateway"
	"github.com/quickflux/fulfillment/internal/payment/repository"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

const serviceName = "payment-service"

// PaymentService owns the pre-authorization lifecycle. Gateway idempotency
// keys are derived from stable ids ("preauth-<order>", "capture-<preauth>")
// so a retried call never double-charges even if the processed-event ledger
// missed the duplicate.
type PaymentService struct {
	repo    repository.PaymentRepository
	gateway gateway.Gateway
	bus     messaging.Bus
	logger  *zap.Logger
}

func NewPaymentService(repo repository.PaymentRepository, gw gateway.Gateway, bus messaging.Bus, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:    repo,
		gateway: gw,
		bus:     bus,
		logger:  logger,
	}
}

// PreAuthorize places a hold for the order's total. A repeated call for the
// same order returns the existing payment; the order id is the Phase 1
// idempotency key.
func (s *PaymentService) PreAuthorize(ctx context.Context, orderID uuid.UUID, amount float64) (*domain.Payment, error) {
	if amount < 0 {
		return nil, fmt.Errorf("invalid amount: %f", amount)
	}

	if existing, err := s.repo.GetByOrderID(orderID); err == nil {
		s.logger.Info("Pre-authorization already exists for order",
			zap.String("order_id", orderID.String()),
			zap.String("preauth_id", existing.ID.String()))
		return existing, nil
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}

	gatewayRef, err := s.gateway.PreAuthorize(ctx, "preauth-"+orderID.String(), amount)
	if err != nil {
		s.logger.Warn("Pre-authorization declined",
			zap.String("order_id", orderID.String()),
			zap.Float64("amount", amount),
			zap.Error(err))
		return nil, err
	}

	payment := domain.NewPayment(orderID, amount, gatewayRef)
	if err := s.repo.Create(payment); err != nil {
		return nil, err
	}

	s.logger.Info("Payment pre-authorized",
		zap.String("order_id", orderID.String()),
		zap.String("preauth_id", payment.ID.String()),
		zap.Float64("amount", amount))
	return payment, nil
}

// Capture settles the hold and publishes the outcome: PaymentCaptured on
// success, PaymentFailed when the gateway declines. A payment already in a
// terminal state republishes its outcome instead of touching the gateway, so
// a redelivered trigger converges on the same announcement.
func (s *PaymentService) Capture(ctx context.Context, preauthID, userID, reservationID uuid.UUID) error {
	payment, err := s.repo.GetByID(preauthID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case domain.PaymentStatusCaptured:
		return s.publishCaptured(ctx, payment, userID)
	case domain.PaymentStatusFailed:
		return s.publishFailed(ctx, payment, userID, reservationID)
	}

	captureErr := s.gateway.Capture(ctx, "capture-"+preauthID.String(), payment.GatewayRef, payment.Amount)
	if captureErr != nil {
		if !errors.Is(captureErr, gateway.ErrPaymentDeclined) {
			// Transport fault, not a decline; leave the payment open for
			// the redelivery.
			return captureErr
		}

		if err := payment.MarkFailed(captureErr.Error()); err != nil {
			return err
		}
		if err := s.persist(payment); err != nil {
			return err
		}

		s.logger.Warn("Capture declined",
			zap.String("order_id", payment.OrderID.String()),
			zap.String("preauth_id", payment.ID.String()),
			zap.Error(captureErr))
		return s.publishFailed(ctx, payment, userID, reservationID)
	}

	if err := payment.MarkCaptured(); err != nil {
		return err
	}
	if err := s.persist(payment); err != nil {
		return err
	}

	s.logger.Info("Payment captured",
		zap.String("order_id", payment.OrderID.String()),
		zap.String("preauth_id", payment.ID.String()),
		zap.Float64("amount", payment.Amount))
	return s.publishCaptured(ctx, payment, userID)
}

// Void releases the hold without settling, used when the sibling reservation
// failed in Phase 1. Voiding a payment that already resolved is a no-op.
func (s *PaymentService) Void(ctx context.Context, preauthID uuid.UUID) error {
	payment, err := s.repo.GetByID(preauthID)
	if err != nil {
		return err
	}

	if err := payment.MarkFailed("pre-authorization voided"); err != nil {
		var transitionErr *shared.InvalidStateTransitionError
		if errors.As(err, &transitionErr) {
			s.logger.Info("Void skipped, payment already resolved",
				zap.String("preauth_id", preauthID.String()),
				zap.String("status", string(payment.Status)))
			return nil
		}
		return err
	}

	if err := s.gateway.Void(ctx, payment.GatewayRef); err != nil {
		return err
	}
	if err := s.persist(payment); err != nil {
		return err
	}

	s.logger.Info("Pre-authorization voided",
		zap.String("order_id", payment.OrderID.String()),
		zap.String("preauth_id", preauthID.String()))
	return nil
}

func (s *PaymentService) GetPayment(preauthID uuid.UUID) (*domain.Payment, error) {
	return s.repo.GetByID(preauthID)
}

func (s *PaymentService) persist(payment *domain.Payment) error {
	err := s.repo.Update(payment)
	if err == nil {
		return nil
	}

	var conflict *shared.VersionConflictError
	if errors.As(err, &conflict) {
		// A concurrent writer resolved this payment first; the redelivery
		// will observe the terminal state and republish.
		return err
	}
	return fmt.Errorf("payment persist error: %w", err)
}

func (s *PaymentService) publishCaptured(ctx context.Context, payment *domain.Payment, userID uuid.UUID) error {
	event := events.NewPaymentCaptured(payment.OrderID, serviceName, payment.OrderID, payment.Amount, userID)
	if err := s.bus.Publish(ctx, events.TopicPaymentCaptured, payment.OrderID.String(), event); err != nil {
		return fmt.Errorf("payment captured publish error: %w", err)
	}
	return nil
}

func (s *PaymentService) publishFailed(ctx context.Context, payment *domain.Payment, userID, reservationID uuid.UUID) error {
	event := events.NewPaymentFailed(payment.OrderID, serviceName, payment.OrderID, payment.FailureReason, reservationID, userID)
	if err := s.bus.Publish(ctx, events.TopicPaymentFailed, payment.OrderID.String(), event); err != nil {
		return fmt.Errorf("payment failed publish error: %w", err)
	}
	return nil
}
