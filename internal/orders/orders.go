// Package orders stores settled orders. An order exists only once its
// reservation is confirmed and its payment attempt completed.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/latronicstore/latronic1/internal/inventory"
)

var ErrNotFound = errors.New("order not found")

// Order is immutable once created.
type Order struct {
	ID            string                   `json:"id"`
	ReservationID string                   `json:"reservation_id"`
	PaymentToken  string                   `json:"payment_token"`
	GatewayRef    string                   `json:"gateway_ref"`
	TrackingID    string                   `json:"tracking_id"`
	FirstName     string                   `json:"first_name"`
	LastName      string                   `json:"last_name"`
	Email         string                   `json:"email"`
	Address       string                   `json:"address"`
	Lines         []inventory.ReservedLine `json:"lines"`
	TotalCents    int64                    `json:"total_cents"`
	SettledAt     time.Time                `json:"settled_at"`
}

type Repo interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	// GetByToken resolves the order created for an idempotency token, used
	// when a retried checkout replays a completed payment.
	GetByToken(ctx context.Context, token string) (Order, error)
}
