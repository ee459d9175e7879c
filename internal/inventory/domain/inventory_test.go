package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestReduceStockNeverGoesNegative(t *testing.T) {
	product := &Product{ID: uuid.New(), Name: "widget", Price: 10.00, Stock: 5}

	if err := product.ReduceStock(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Stock != 2 {
		t.Errorf("expected stock 2, got %d", product.Stock)
	}

	err := product.ReduceStock(3)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 2 || insufficient.Requested != 3 {
		t.Errorf("error details wrong: %+v", insufficient)
	}
	if product.Stock != 2 {
		t.Errorf("failed reduction must not change stock, got %d", product.Stock)
	}
}

func TestRestoreStock(t *testing.T) {
	product := &Product{ID: uuid.New(), Stock: 2}
	product.RestoreStock(3)
	if product.Stock != 5 {
		t.Errorf("expected stock 5, got %d", product.Stock)
	}
}

func TestReservationLifecycle(t *testing.T) {
	reservation := NewReservation(uuid.New(), uuid.New(), 2)

	if reservation.Status != ReservationStatusReserved {
		t.Fatalf("expected RESERVED, got %s", reservation.Status)
	}
	if got := reservation.ExpiresAt.Sub(reservation.ReservedAt); got != ReservationTTL {
		t.Errorf("expected TTL %v, got %v", ReservationTTL, got)
	}

	if err := reservation.Confirm(); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := reservation.Release(); err == nil {
		t.Error("release of a confirmed reservation should fail")
	}
	if !reservation.IsTerminal() {
		t.Error("confirmed reservation should be terminal")
	}
}

func TestReleaseOnlyFromReserved(t *testing.T) {
	reservation := NewReservation(uuid.New(), uuid.New(), 2)
	if err := reservation.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := reservation.Release(); err == nil {
		t.Error("second release should fail")
	}
	if err := reservation.Confirm(); err == nil {
		t.Error("confirm of a released reservation should fail")
	}
}

func TestIsExpired(t *testing.T) {
	reservation := NewReservation(uuid.New(), uuid.New(), 1)

	if reservation.IsExpired(reservation.ReservedAt.Add(time.Minute)) {
		t.Error("fresh reservation should not be expired")
	}
	if !reservation.IsExpired(reservation.ExpiresAt.Add(time.Second)) {
		t.Error("past-TTL reservation should be expired")
	}

	reservation.Confirm()
	if reservation.IsExpired(reservation.ExpiresAt.Add(time.Second)) {
		t.Error("terminal reservation never expires")
	}
}
