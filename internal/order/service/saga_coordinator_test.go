package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/order/clients"
	"github.com/quickflux/fulfillment/internal/order/domain"
	"github.com/quickflux/fulfillment/internal/order/repository"
	"github.com/quickflux/fulfillment/internal/shared/events"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

type fakeInventory struct {
	mu         sync.Mutex
	reserveErr error
	releaseErr error
	reserved   int
	released   []uuid.UUID
}

func (f *fakeInventory) ReserveStock(ctx context.Context, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return uuid.Nil, f.reserveErr
	}
	f.reserved++
	return uuid.New(), nil
}

func (f *fakeInventory) ReleaseStock(ctx context.Context, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, orderID)
	return f.releaseErr
}

type fakePayments struct {
	mu         sync.Mutex
	preauthErr error
	voided     []uuid.UUID
}

func (f *fakePayments) PreAuthorizePayment(ctx context.Context, orderID uuid.UUID, amount float64) (*clients.PreAuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.preauthErr != nil {
		return nil, f.preauthErr
	}
	return &clients.PreAuthResult{PreAuthID: uuid.New(), GatewayRef: "pa_test", Status: "PRE_AUTHORIZED"}, nil
}

func (f *fakePayments) VoidPreAuth(ctx context.Context, preauthID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voided = append(f.voided, preauthID)
	return nil
}

type failingBus struct {
	messaging.Bus
}

func (b *failingBus) Publish(ctx context.Context, topic, key string, event interface{}) error {
	return errors.New("broker unavailable")
}

func newTestCoordinator(inventory *fakeInventory, payments *fakePayments, bus messaging.Bus) (*SagaCoordinator, *repository.MemoryOrderRepository) {
	repo := repository.NewMemoryOrderRepository()
	coordinator := NewSagaCoordinator(repo, inventory, payments, bus, 5*time.Second, zap.NewNop())
	return coordinator, repo
}

func TestCreateOrderHappyPathEndsPending(t *testing.T) {
	inventory := &fakeInventory{}
	payments := &fakePayments{}
	coordinator, repo := newTestCoordinator(inventory, payments, messaging.NewMemoryBus())

	order, err := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 3, 10.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected PENDING, got %s", order.Status)
	}
	if order.ReservationID == uuid.Nil || order.PaymentPreAuthID == uuid.Nil {
		t.Error("phase 1 references missing")
	}

	stored, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Errorf("persisted status %s, want PENDING", stored.Status)
	}
}

func TestOrderCreatedCarriesOrderIDAsCorrelationID(t *testing.T) {
	inventory := &fakeInventory{}
	payments := &fakePayments{}
	bus := messaging.NewMemoryBus()
	coordinator, _ := newTestCoordinator(inventory, payments, bus)

	var published events.OrderCreated
	bus.Subscribe(events.TopicOrderCreated, "test", func(ctx context.Context, msg messaging.Message) error {
		return json.Unmarshal(msg.Value, &published)
	})

	order, err := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 3, 10.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if published.CorrelationID != order.ID {
		t.Errorf("correlation id %s, want order id %s", published.CorrelationID, order.ID)
	}
}

func TestCreateOrderReservationFailureVoidsPreAuth(t *testing.T) {
	inventory := &fakeInventory{reserveErr: errors.New("insufficient stock")}
	payments := &fakePayments{}
	coordinator, repo := newTestCoordinator(inventory, payments, messaging.NewMemoryBus())

	userID := uuid.New()
	_, err := coordinator.CreateOrder(context.Background(), userID, uuid.New(), 1, 10.00)
	if err == nil {
		t.Fatal("expected error")
	}

	if len(payments.voided) != 1 {
		t.Errorf("expected 1 void, got %d", len(payments.voided))
	}
	if len(inventory.released) != 0 {
		t.Errorf("release must not run when the reservation never succeeded, got %d", len(inventory.released))
	}

	orders, _ := repo.GetByUserID(userID)
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusCancelled {
		t.Error("order should be persisted as CANCELLED")
	}
}

func TestCreateOrderPreAuthFailureReleasesStock(t *testing.T) {
	inventory := &fakeInventory{}
	payments := &fakePayments{preauthErr: errors.New("card declined")}
	coordinator, repo := newTestCoordinator(inventory, payments, messaging.NewMemoryBus())

	userID := uuid.New()
	_, err := coordinator.CreateOrder(context.Background(), userID, uuid.New(), 1, 10.00)
	if err == nil {
		t.Fatal("expected error")
	}

	if len(inventory.released) != 1 {
		t.Errorf("expected 1 release, got %d", len(inventory.released))
	}
	if len(payments.voided) != 0 {
		t.Errorf("void must not run when the pre-auth never succeeded, got %d", len(payments.voided))
	}

	orders, _ := repo.GetByUserID(userID)
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusCancelled {
		t.Error("order should be persisted as CANCELLED")
	}
}

func TestCreateOrderBothFailuresNeedNoCompensation(t *testing.T) {
	inventory := &fakeInventory{reserveErr: errors.New("insufficient stock")}
	payments := &fakePayments{preauthErr: errors.New("card declined")}
	coordinator, _ := newTestCoordinator(inventory, payments, messaging.NewMemoryBus())

	_, err := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 1, 10.00)
	if err == nil {
		t.Fatal("expected error")
	}

	if len(inventory.released) != 0 || len(payments.voided) != 0 {
		t.Error("no compensation should run when both legs failed")
	}
}

func TestCreateOrderPublishFailureCompensatesBothLegs(t *testing.T) {
	inventory := &fakeInventory{}
	payments := &fakePayments{}
	coordinator, repo := newTestCoordinator(inventory, payments, &failingBus{})

	userID := uuid.New()
	_, err := coordinator.CreateOrder(context.Background(), userID, uuid.New(), 1, 10.00)
	if err == nil {
		t.Fatal("expected error")
	}

	if len(inventory.released) != 1 {
		t.Errorf("expected 1 release, got %d", len(inventory.released))
	}
	if len(payments.voided) != 1 {
		t.Errorf("expected 1 void, got %d", len(payments.voided))
	}

	orders, _ := repo.GetByUserID(userID)
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusCancelled {
		t.Error("order should be persisted as CANCELLED")
	}
}

func TestJoinConfirmsOrderInEitherOrder(t *testing.T) {
	for name, signals := range map[string][2]func(*SagaCoordinator, uuid.UUID) error{
		"payment first": {(*SagaCoordinator).RecordPaymentCaptured, (*SagaCoordinator).RecordStockConfirmed},
		"stock first":   {(*SagaCoordinator).RecordStockConfirmed, (*SagaCoordinator).RecordPaymentCaptured},
	} {
		t.Run(name, func(t *testing.T) {
			coordinator, repo := newTestCoordinator(&fakeInventory{}, &fakePayments{}, messaging.NewMemoryBus())
			order, err := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 1, 10.00)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := signals[0](coordinator, order.ID); err != nil {
				t.Fatalf("first signal: %v", err)
			}
			stored, _ := repo.GetByID(order.ID)
			if stored.Status != domain.OrderStatusPending {
				t.Fatalf("order must stay PENDING after one signal, got %s", stored.Status)
			}

			if err := signals[1](coordinator, order.ID); err != nil {
				t.Fatalf("second signal: %v", err)
			}
			stored, _ = repo.GetByID(order.ID)
			if stored.Status != domain.OrderStatusConfirmed {
				t.Errorf("expected CONFIRMED, got %s", stored.Status)
			}
			if coordinator.tracker.Tracked(order.ID) {
				t.Error("tracker entry should be discarded after confirmation")
			}
		})
	}
}

func TestCancelFromPaymentFailureOnPendingOrder(t *testing.T) {
	coordinator, repo := newTestCoordinator(&fakeInventory{}, &fakePayments{}, messaging.NewMemoryBus())
	order, _ := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 1, 10.00)

	if err := coordinator.CancelFromPaymentFailure(order.ID, "card declined"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetByID(order.ID)
	if stored.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", stored.Status)
	}

	// Redelivery is a no-op.
	if err := coordinator.CancelFromPaymentFailure(order.ID, "card declined"); err != nil {
		t.Fatalf("duplicate cancel should be a no-op, got %v", err)
	}
}

func TestLatePaymentFailureForcesCancelOfConfirmedOrder(t *testing.T) {
	coordinator, repo := newTestCoordinator(&fakeInventory{}, &fakePayments{}, messaging.NewMemoryBus())
	order, _ := coordinator.CreateOrder(context.Background(), uuid.New(), uuid.New(), 1, 10.00)

	coordinator.RecordPaymentCaptured(order.ID)
	coordinator.RecordStockConfirmed(order.ID)

	stored, _ := repo.GetByID(order.ID)
	if stored.Status != domain.OrderStatusConfirmed {
		t.Fatalf("precondition: expected CONFIRMED, got %s", stored.Status)
	}

	if err := coordinator.CancelFromPaymentFailure(order.ID, "capture reversed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ = repo.GetByID(order.ID)
	if stored.Status != domain.OrderStatusCancelled {
		t.Errorf("expected forced CANCELLED, got %s", stored.Status)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	coordinator, _ := newTestCoordinator(&fakeInventory{}, &fakePayments{}, messaging.NewMemoryBus())
	owner := uuid.New()
	order, _ := coordinator.CreateOrder(context.Background(), owner, uuid.New(), 1, 10.00)

	if _, err := coordinator.GetOrder(order.ID, owner); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}

	_, err := coordinator.GetOrder(order.ID, uuid.New())
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Errorf("foreign lookup must report not found, got %v", err)
	}
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	coordinator, _ := newTestCoordinator(&fakeInventory{}, &fakePayments{}, messaging.NewMemoryBus())

	cases := []struct {
		name      string
		userID    uuid.UUID
		productID uuid.UUID
		quantity  int
		price     float64
	}{
		{"missing user", uuid.Nil, uuid.New(), 1, 10.00},
		{"missing product", uuid.New(), uuid.Nil, 1, 10.00},
		{"zero quantity", uuid.New(), uuid.New(), 0, 10.00},
		{"negative price", uuid.New(), uuid.New(), 1, -1.00},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coordinator.CreateOrder(context.Background(), tc.userID, tc.productID, tc.quantity, tc.price)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}
