// Package ledger records payment attempts keyed by idempotency token so client
// retries replay the stored outcome instead of charging twice.
package ledger

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	StateSubmitted State = "submitted"
	StateCompleted State = "completed"
	StateDeclined  State = "declined"
	StateErrored   State = "errored"
)

// Terminal reports whether the attempt can no longer change.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDeclined || s == StateErrored
}

// PaymentAttempt maps one idempotency token to at most one gateway charge.
// Once terminal it is immutable.
type PaymentAttempt struct {
	Token       string    `json:"token"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	State       State     `json:"state"`
	GatewayRef  string    `json:"gateway_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("payment attempt not found")

	// ErrConflict means a terminal attempt was asked to take a different
	// terminal state. That is a gateway inconsistency and is always
	// escalated, never auto-resolved.
	ErrConflict = errors.New("payment attempt outcome conflict")
)

// Ledger is the idempotency contract. Begin is atomic per token: of two
// concurrent calls with the same token exactly one creates the attempt, the
// other observes the existing one.
type Ledger interface {
	// Begin registers a new submitted attempt. created is false when the
	// token already existed, in which case the stored attempt is returned.
	Begin(ctx context.Context, token string, amountCents int64, currency string) (att PaymentAttempt, created bool, err error)

	// Complete transitions a submitted attempt to a terminal state.
	// Completing with the same terminal state again is a no-op; a different
	// terminal state returns ErrConflict.
	Complete(ctx context.Context, token string, state State, gatewayRef string) error

	Lookup(ctx context.Context, token string) (PaymentAttempt, error)
}
