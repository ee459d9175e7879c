// Package clients holds the synchronous Phase-1 capabilities the saga
// coordinator calls on the other participants. The coordinator depends only
// on these interfaces; tests substitute fakes.
package clients

import (
	"context"

	"github.com/google/uuid"
)

type InventoryClient interface {
	ReserveStock(ctx context.Context, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error)
	// ReleaseStock is the compensating call; it is idempotent on the
	// inventory side.
	ReleaseStock(ctx context.Context, orderID uuid.UUID) error
}

type PreAuthResult struct {
	PreAuthID  uuid.UUID `json:"preauth_id"`
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"`
}

type PaymentClient interface {
	PreAuthorizePayment(ctx context.Context, orderID uuid.UUID, amount float64) (*PreAuthResult, error)
	// VoidPreAuth is the compensating call for a successful pre-auth whose
	// sibling reservation failed.
	VoidPreAuth(ctx context.Context, preauthID uuid.UUID) error
}
