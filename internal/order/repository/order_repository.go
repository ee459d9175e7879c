package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/quickflux/fulfillment/internal/order/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository interface {
	Create(order *domain.Order) error
	// Update performs a compare-and-swap on the order's revision. A stale
	// revision fails with VersionConflictError and writes nothing.
	Update(order *domain.Order) error
	GetByID(orderID uuid.UUID) (*domain.Order, error)
	GetByUserID(userID uuid.UUID) ([]*domain.Order, error)
}

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) Create(order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, product_id, quantity, unit_price, total_amount,
			status, reservation_id, payment_preauth_id, created_at, revision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(
		query,
		order.ID,
		order.UserID,
		order.ProductID,
		order.Quantity,
		order.UnitPrice,
		order.TotalAmount,
		order.Status,
		nullableID(order.ReservationID),
		nullableID(order.PaymentPreAuthID),
		order.CreatedAt,
		order.Revision,
	)
	if err != nil {
		return fmt.Errorf("order insert error: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) Update(order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $3, reservation_id = $4, payment_preauth_id = $5, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`

	result, err := r.db.Exec(
		query,
		order.ID,
		order.Revision,
		order.Status,
		nullableID(order.ReservationID),
		nullableID(order.PaymentPreAuthID),
	)
	if err != nil {
		return fmt.Errorf("order update error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order update error: %w", err)
	}
	if affected == 0 {
		return &shared.VersionConflictError{Entity: "order", ID: order.ID.String(), Revision: order.Revision}
	}

	order.Revision++
	return nil
}

func (r *PostgresOrderRepository) GetByID(orderID uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT id, user_id, product_id, quantity, unit_price, total_amount,
		       status, reservation_id, payment_preauth_id, created_at, revision
		FROM orders
		WHERE id = $1
	`

	order := &domain.Order{}
	var reservationID, preauthID sql.NullString

	err := r.db.QueryRow(query, orderID).Scan(
		&order.ID,
		&order.UserID,
		&order.ProductID,
		&order.Quantity,
		&order.UnitPrice,
		&order.TotalAmount,
		&order.Status,
		&reservationID,
		&preauthID,
		&order.CreatedAt,
		&order.Revision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order query error: %w", err)
	}

	order.ReservationID = parseNullableID(reservationID)
	order.PaymentPreAuthID = parseNullableID(preauthID)
	return order, nil
}

func (r *PostgresOrderRepository) GetByUserID(userID uuid.UUID) ([]*domain.Order, error) {
	query := `
		SELECT id, user_id, product_id, quantity, unit_price, total_amount,
		       status, reservation_id, payment_preauth_id, created_at, revision
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("orders query error: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		var reservationID, preauthID sql.NullString

		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.ProductID,
			&order.Quantity,
			&order.UnitPrice,
			&order.TotalAmount,
			&order.Status,
			&reservationID,
			&preauthID,
			&order.CreatedAt,
			&order.Revision,
		)
		if err != nil {
			return nil, fmt.Errorf("order scan error: %w", err)
		}

		order.ReservationID = parseNullableID(reservationID)
		order.PaymentPreAuthID = parseNullableID(preauthID)
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func nullableID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func parseNullableID(v sql.NullString) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return uuid.Nil
	}
	return id
}
