package payments

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v81"
)

func TestClassifyChargeError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus Status
		wantErrIs  error
	}{
		{
			name:       "card error is an authoritative decline",
			err:        &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined},
			wantStatus: StatusDeclined,
		},
		{
			name:      "invalid request is an authoritative permanent error",
			err:       &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "amount must be positive"},
			wantErrIs: ErrPermanent,
		},
		{
			name:      "api error is retriable",
			err:       &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "something went wrong"},
			wantErrIs: ErrTransient,
		},
		{
			name:      "idempotency error is unknown, never a decline",
			err:       &stripe.Error{Type: stripe.ErrorTypeIdempotency, Msg: "key reused with different params"},
			wantErrIs: ErrUnknown,
		},
		{
			name:      "raw transport error is unknown",
			err:       errors.New("context deadline exceeded"),
			wantErrIs: ErrUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := classifyChargeError(tt.err)
			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("err = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
		})
	}
}

func TestResultFromIntent(t *testing.T) {
	tests := []struct {
		name       string
		status     stripe.PaymentIntentStatus
		wantStatus Status
		wantErrIs  error
	}{
		{name: "succeeded", status: stripe.PaymentIntentStatusSucceeded, wantStatus: StatusCompleted},
		{name: "requires payment method", status: stripe.PaymentIntentStatusRequiresPaymentMethod, wantStatus: StatusDeclined},
		{name: "canceled", status: stripe.PaymentIntentStatusCanceled, wantStatus: StatusDeclined},
		{name: "requires action", status: stripe.PaymentIntentStatusRequiresAction, wantStatus: StatusDeclined},
		{name: "processing is not terminal", status: stripe.PaymentIntentStatusProcessing, wantErrIs: ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resultFromIntent(&stripe.PaymentIntent{ID: "pi_test", Status: tt.status})
			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("err = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
			if res.Status == StatusCompleted && res.Reference != "pi_test" {
				t.Errorf("reference = %s, want pi_test", res.Reference)
			}
		})
	}
}
