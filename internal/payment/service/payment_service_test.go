package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/payment/domain"
	"github.com/quickflux/fulfillment/internal/payment/gateway"
	"github.com/quickflux/fulfillment/internal/payment/repository"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

type recordingBus struct {
	*messaging.MemoryBus
	captured []events.PaymentCaptured
	failed   []events.PaymentFailed
}

func newRecordingBus(t *testing.T) *recordingBus {
	t.Helper()
	bus := &recordingBus{MemoryBus: messaging.NewMemoryBus()}
	bus.Subscribe(events.TopicPaymentCaptured, "test", func(ctx context.Context, msg messaging.Message) error {
		var event events.PaymentCaptured
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		bus.captured = append(bus.captured, event)
		return nil
	})
	bus.Subscribe(events.TopicPaymentFailed, "test", func(ctx context.Context, msg messaging.Message) error {
		var event events.PaymentFailed
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		bus.failed = append(bus.failed, event)
		return nil
	})
	return bus
}

func TestPreAuthorizeCreatesPayment(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 0, 0), messaging.NewMemoryBus(), zap.NewNop())

	payment, err := svc.PreAuthorize(context.Background(), uuid.New(), 30.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != domain.PaymentStatusPreAuthorized {
		t.Errorf("expected PRE_AUTHORIZED, got %s", payment.Status)
	}
	if payment.GatewayRef == "" {
		t.Error("gateway ref missing")
	}
}

func TestPreAuthorizeIdempotentPerOrder(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 0, 0), messaging.NewMemoryBus(), zap.NewNop())
	orderID := uuid.New()

	first, _ := svc.PreAuthorize(context.Background(), orderID, 30.00)
	second, err := svc.PreAuthorize(context.Background(), orderID, 30.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Error("retried pre-auth must return the existing payment")
	}
}

func TestPreAuthorizeDeclined(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo, gateway.NewFakeStripe(1.0, 0, 0), messaging.NewMemoryBus(), zap.NewNop())

	_, err := svc.PreAuthorize(context.Background(), uuid.New(), 30.00)
	if !errors.Is(err, gateway.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
}

func TestCapturePublishesPaymentCaptured(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	bus := newRecordingBus(t)
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 0, 0), bus, zap.NewNop())

	orderID, userID := uuid.New(), uuid.New()
	payment, _ := svc.PreAuthorize(context.Background(), orderID, 30.00)

	if err := svc.Capture(context.Background(), payment.ID, userID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bus.captured) != 1 {
		t.Fatalf("expected 1 PaymentCaptured, got %d", len(bus.captured))
	}
	if bus.captured[0].OrderID != orderID || bus.captured[0].Amount != 30.00 || bus.captured[0].UserID != userID {
		t.Errorf("event fields wrong: %+v", bus.captured[0])
	}

	stored, _ := repo.GetByID(payment.ID)
	if stored.Status != domain.PaymentStatusCaptured {
		t.Errorf("expected CAPTURED, got %s", stored.Status)
	}
}

func TestCaptureDeclinePublishesPaymentFailed(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	bus := newRecordingBus(t)
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 1.0, 0), bus, zap.NewNop())

	reservationID := uuid.New()
	payment, _ := svc.PreAuthorize(context.Background(), uuid.New(), 30.00)

	if err := svc.Capture(context.Background(), payment.ID, uuid.New(), reservationID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bus.failed) != 1 {
		t.Fatalf("expected 1 PaymentFailed, got %d", len(bus.failed))
	}
	if bus.failed[0].ReservationID != reservationID {
		t.Error("PaymentFailed must carry the reservation id")
	}
	if bus.failed[0].Reason == "" {
		t.Error("PaymentFailed must carry a reason")
	}

	stored, _ := repo.GetByID(payment.ID)
	if stored.Status != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", stored.Status)
	}
}

func TestCaptureOnTerminalPaymentRepublishesOutcome(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	bus := newRecordingBus(t)
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 0, 0), bus, zap.NewNop())

	payment, _ := svc.PreAuthorize(context.Background(), uuid.New(), 30.00)
	svc.Capture(context.Background(), payment.ID, uuid.New(), uuid.New())
	svc.Capture(context.Background(), payment.ID, uuid.New(), uuid.New())

	if len(bus.captured) != 2 {
		t.Errorf("redelivered capture should republish, got %d events", len(bus.captured))
	}
}

func TestVoidResolvesPaymentNegatively(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo, gateway.NewFakeStripe(0, 0, 0), messaging.NewMemoryBus(), zap.NewNop())

	payment, _ := svc.PreAuthorize(context.Background(), uuid.New(), 30.00)
	if err := svc.Void(context.Background(), payment.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(payment.ID)
	if stored.Status != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED after void, got %s", stored.Status)
	}

	// Void of a resolved payment is a no-op.
	if err := svc.Void(context.Background(), payment.ID); err != nil {
		t.Errorf("duplicate void should be a no-op, got %v", err)
	}
}
