// Package payments talks to the external payment gateway. The gateway is
// untrusted for timing: a charge may complete on its side after we observed a
// timeout, so ambiguous failures are ErrUnknown, never treated as declined.
package payments

import (
	"context"
	"errors"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
)

// Result is an authoritative gateway outcome. Declined is a result, not an
// error: the gateway answered, the card just did not go through.
type Result struct {
	Status    Status
	Reference string // gateway charge reference, set when completed
	Reason    string // decline reason, set when declined
}

var (
	// ErrTransient covers failures that are safe to retry with the same
	// idempotency token (gateway 5xx, connection errors).
	ErrTransient = errors.New("transient gateway error")

	// ErrPermanent is an authoritative failure that is not a card decline
	// (e.g. the gateway rejected the request as invalid). Never retried; the
	// charge definitively did not happen.
	ErrPermanent = errors.New("permanent gateway error")

	// ErrUnknown means the outcome could not be determined (timeout after
	// the request may have been delivered). The caller must resolve it via
	// Status before taking any compensating action.
	ErrUnknown = errors.New("gateway outcome unknown")
)

// ChargeRequest carries everything one charge needs. Token doubles as the
// gateway idempotency key and must be stable across retries of the same
// logical checkout.
type ChargeRequest struct {
	Token        string
	AmountCents  int64
	Currency     string
	SourceID     string // tokenized payment method from the client
	ReceiptEmail string
}

type Gateway interface {
	// Charge submits the payment with a bounded timeout.
	Charge(ctx context.Context, req ChargeRequest) (Result, error)

	// Status resolves the authoritative outcome for a token after an
	// ambiguous Charge. Implementations replay the idempotent request: the
	// gateway returns the stored outcome instead of charging again.
	Status(ctx context.Context, req ChargeRequest) (Result, error)
}
