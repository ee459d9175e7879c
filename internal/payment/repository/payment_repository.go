package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/quickflux/fulfillment/internal/payment/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository interface {
	Create(payment *domain.Payment) error
	// Update performs a compare-and-swap on the payment's revision.
	Update(payment *domain.Payment) error
	GetByID(paymentID uuid.UUID) (*domain.Payment, error)
	GetByOrderID(orderID uuid.UUID) (*domain.Payment, error)
}

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func (r *PostgresPaymentRepository) Create(payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, order_id, amount, status, gateway_ref,
			failure_reason, created_at, revision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		query,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Status,
		payment.GatewayRef,
		payment.FailureReason,
		payment.CreatedAt,
		payment.Revision,
	)
	if err != nil {
		return fmt.Errorf("payment insert error: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) Update(payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $3, failure_reason = $4, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`

	result, err := r.db.Exec(query, payment.ID, payment.Revision, payment.Status, payment.FailureReason)
	if err != nil {
		return fmt.Errorf("payment update error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment update error: %w", err)
	}
	if affected == 0 {
		return &shared.VersionConflictError{Entity: "payment", ID: payment.ID.String(), Revision: payment.Revision}
	}

	payment.Revision++
	return nil
}

func (r *PostgresPaymentRepository) GetByID(paymentID uuid.UUID) (*domain.Payment, error) {
	return r.queryOne(`
		SELECT id, order_id, amount, status, gateway_ref,
		       failure_reason, created_at, revision
		FROM payments
		WHERE id = $1
	`, paymentID)
}

func (r *PostgresPaymentRepository) GetByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	return r.queryOne(`
		SELECT id, order_id, amount, status, gateway_ref,
		       failure_reason, created_at, revision
		FROM payments
		WHERE order_id = $1
	`, orderID)
}

func (r *PostgresPaymentRepository) queryOne(query string, arg interface{}) (*domain.Payment, error) {
	payment := &domain.Payment{}
	err := r.db.QueryRow(query, arg).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Amount,
		&payment.Status,
		&payment.GatewayRef,
		&payment.FailureReason,
		&payment.CreatedAt,
		&payment.Revision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment query error: %w", err)
	}
	return payment, nil
}
