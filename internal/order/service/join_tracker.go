package service

import (
	"sync"

	"github.com/google/uuid"
)

// JoinTracker remembers which of the two Phase-2 signals have arrived per
// order. It is ephemeral process-local state and never the arbiter of
// confirmation: the persisted order status is the source of truth, the
// tracker only decides when to attempt the confirm call. A tracker lost to a
// restart self-heals on event redelivery.
//
// Entries are inserted on first signal and removed on completion or
// cancellation, so the arena does not grow with order history.
type JoinTracker struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*joinState
}

type joinState struct {
	paymentCaptured bool
	stockConfirmed  bool
}

func NewJoinTracker() *JoinTracker {
	return &JoinTracker{pending: make(map[uuid.UUID]*joinState)}
}

// RecordPaymentCaptured reports whether both signals are now present.
func (t *JoinTracker) RecordPaymentCaptured(orderID uuid.UUID) bool {
	return t.record(orderID, func(s *joinState) { s.paymentCaptured = true })
}

// RecordStockConfirmed reports whether both signals are now present.
func (t *JoinTracker) RecordStockConfirmed(orderID uuid.UUID) bool {
	return t.record(orderID, func(s *joinState) { s.stockConfirmed = true })
}

func (t *JoinTracker) record(orderID uuid.UUID, set func(*joinState)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.pending[orderID]
	if !ok {
		state = &joinState{}
		t.pending[orderID] = state
	}
	set(state)
	return state.paymentCaptured && state.stockConfirmed
}

func (t *JoinTracker) Discard(orderID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, orderID)
}

// Tracked reports whether an entry exists for the order.
func (t *JoinTracker) Tracked(orderID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[orderID]
	return ok
}
