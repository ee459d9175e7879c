package idempotency

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresLedger stores processed events in the participant's own database.
// The unique constraint on event_id makes concurrent marks of the same event
// collapse to one row.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) IsProcessed(eventID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`

	if err := l.db.QueryRow(query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ledger lookup error: %w", err)
	}
	return exists, nil
}

func (l *PostgresLedger) MarkProcessed(eventID uuid.UUID, eventType string) error {
	query := `
		INSERT INTO processed_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	if _, err := l.db.Exec(query, eventID, eventType); err != nil {
		return fmt.Errorf("ledger mark error: %w", err)
	}
	return nil
}
