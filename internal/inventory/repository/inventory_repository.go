package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
	shared "github.com/quickflux/fulfillment/internal/shared/domain"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

type InventoryRepository interface {
	GetProductByID(productID uuid.UUID) (*domain.Product, error)
	// ReserveStock persists the decremented product and the new reservation
	// row together: both writes commit or neither does, so a failure cannot
	// strand a stock decrement with no reservation auditing it. The product
	// write is a compare-and-swap on its revision; two concurrent
	// reservations for the last units race here and the loser gets
	// VersionConflictError and must reload.
	ReserveStock(product *domain.Product, reservation *domain.Reservation) error
	// ReleaseStock flips the reservation to its new status and writes the
	// restored product stock in the same transaction. Both rows are
	// revision-checked; a conflict on either aborts the whole release.
	ReleaseStock(reservation *domain.Reservation, product *domain.Product) error
	UpdateReservation(reservation *domain.Reservation) error
	GetReservationByOrderID(orderID uuid.UUID) (*domain.Reservation, error)
}

type PostgresInventoryRepository struct {
	db *sql.DB
}

func NewPostgresInventoryRepository(db *sql.DB) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx so the row writes below can
// run standalone or inside a transaction.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *PostgresInventoryRepository) GetProductByID(productID uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, price, stock, revision
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRow(query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Stock,
		&product.Revision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("product query error: %w", err)
	}
	return product, nil
}

func (r *PostgresInventoryRepository) ReserveStock(product *domain.Product, reservation *domain.Reservation) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("reserve tx error: %w", err)
	}
	defer tx.Rollback()

	if err := updateProduct(tx, product); err != nil {
		return err
	}
	if err := insertReservation(tx, reservation); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reserve tx error: %w", err)
	}

	product.Revision++
	return nil
}

func (r *PostgresInventoryRepository) ReleaseStock(reservation *domain.Reservation, product *domain.Product) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("release tx error: %w", err)
	}
	defer tx.Rollback()

	if err := updateReservation(tx, reservation); err != nil {
		return err
	}
	if err := updateProduct(tx, product); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release tx error: %w", err)
	}

	reservation.Revision++
	product.Revision++
	return nil
}

func (r *PostgresInventoryRepository) UpdateReservation(reservation *domain.Reservation) error {
	if err := updateReservation(r.db, reservation); err != nil {
		return err
	}
	reservation.Revision++
	return nil
}

func (r *PostgresInventoryRepository) GetReservationByOrderID(orderID uuid.UUID) (*domain.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, quantity, status,
		       reserved_at, expires_at, revision
		FROM reservations
		WHERE order_id = $1
	`

	reservation := &domain.Reservation{}
	err := r.db.QueryRow(query, orderID).Scan(
		&reservation.ID,
		&reservation.OrderID,
		&reservation.ProductID,
		&reservation.Quantity,
		&reservation.Status,
		&reservation.ReservedAt,
		&reservation.ExpiresAt,
		&reservation.Revision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reservation query error: %w", err)
	}
	return reservation, nil
}

func updateProduct(e execer, product *domain.Product) error {
	query := `
		UPDATE products
		SET stock = $3, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`

	result, err := e.Exec(query, product.ID, product.Revision, product.Stock)
	if err != nil {
		return fmt.Errorf("product update error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("product update error: %w", err)
	}
	if affected == 0 {
		return &shared.VersionConflictError{Entity: "product", ID: product.ID.String(), Revision: product.Revision}
	}
	return nil
}

func insertReservation(e execer, reservation *domain.Reservation) error {
	query := `
		INSERT INTO reservations (
			id, order_id, product_id, quantity, status,
			reserved_at, expires_at, revision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := e.Exec(
		query,
		reservation.ID,
		reservation.OrderID,
		reservation.ProductID,
		reservation.Quantity,
		reservation.Status,
		reservation.ReservedAt,
		reservation.ExpiresAt,
		reservation.Revision,
	)
	if err != nil {
		return fmt.Errorf("reservation insert error: %w", err)
	}
	return nil
}

func updateReservation(e execer, reservation *domain.Reservation) error {
	query := `
		UPDATE reservations
		SET status = $3, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`

	result, err := e.Exec(query, reservation.ID, reservation.Revision, reservation.Status)
	if err != nil {
		return fmt.Errorf("reservation update error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reservation update error: %w", err)
	}
	if affected == 0 {
		return &shared.VersionConflictError{Entity: "reservation", ID: reservation.ID.String(), Revision: reservation.Revision}
	}
	return nil
}
