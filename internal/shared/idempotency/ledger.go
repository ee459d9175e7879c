// Package idempotency records processed event ids so handlers are safe under
// at-least-once delivery. A handler checks IsProcessed before doing anything
// and calls MarkProcessed only after its local effects and publishes are
// applied. The check and the mark are not one transaction with the business
// effect; the residual window is covered by gateway idempotency keys and
// terminal-state skips in the participants.
package idempotency

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Ledger interface {
	IsProcessed(eventID uuid.UUID) (bool, error)
	MarkProcessed(eventID uuid.UUID, eventType string) error
}

// ProcessedEvent is one ledger row. Existence is the sole idempotency signal.
type ProcessedEvent struct {
	EventID     uuid.UUID
	EventType   string
	ProcessedAt time.Time
}

// MemoryLedger backs tests and single-process wiring.
type MemoryLedger struct {
	mu     sync.RWMutex
	events map[uuid.UUID]ProcessedEvent
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{events: make(map[uuid.UUID]ProcessedEvent)}
}

func (l *MemoryLedger) IsProcessed(eventID uuid.UUID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.events[eventID]
	return ok, nil
}

func (l *MemoryLedger) MarkProcessed(eventID uuid.UUID, eventType string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.events[eventID]; ok {
		return nil
	}
	l.events[eventID] = ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return nil
}
