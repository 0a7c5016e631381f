package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers malformed carts: empty, non-positive
	// quantities, missing product ids. Rejected before any side effect.
	ErrInvalidInput = errors.New("invalid checkout input")

	// ErrPaymentInProgress is returned when another request holding the
	// same idempotency token is still settling.
	ErrPaymentInProgress = errors.New("payment for this token is still in progress")
)

// DeclinedError is an authoritative gateway decline. The reservation made for
// this checkout has already been released.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// ManualReviewError means settlement could not reach an authoritative outcome:
// money may have moved without a confirmed order. Inventory stays reserved and
// the ledger entry stays open; a human reconciles using the token. Guessing in
// either direction is worse than stalling.
type ManualReviewError struct {
	Token string
	Cause error
}

func (e *ManualReviewError) Error() string {
	return fmt.Sprintf("payment status pending for token %s, manual review required", e.Token)
}

func (e *ManualReviewError) Unwrap() error { return e.Cause }
