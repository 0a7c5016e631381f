package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

// StripeGateway charges through Stripe PaymentIntents. The checkout
// idempotency token is passed as the Stripe idempotency key, so re-submitting
// the identical request never creates a second charge. Status works the same
// way: the replayed response is the stored outcome.
type StripeGateway struct {
	timeout time.Duration
}

func NewStripeGateway(apiKey string, timeout time.Duration) (*StripeGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stripe.Key = apiKey
	return &StripeGateway{timeout: timeout}, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	return g.submit(ctx, req, g.timeout)
}

func (g *StripeGateway) Status(ctx context.Context, req ChargeRequest) (Result, error) {
	// The status query gets a longer budget; it is the last word before any
	// compensating action.
	return g.submit(ctx, req, 3*g.timeout)
}

func (g *StripeGateway) submit(ctx context.Context, req ChargeRequest, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(req.Token),
		},
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.SourceID),
		Confirm:       stripe.Bool(true),
		ReceiptEmail:  stripe.String(req.ReceiptEmail),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return classifyChargeError(err)
	}
	return resultFromIntent(pi)
}

// classifyChargeError sorts a Stripe client error into outcome buckets: card
// failures are authoritative declines, request validation failures are
// authoritative permanent errors, gateway-side errors are retriable, and
// anything ambiguous (timeouts included) is unknown so the caller resolves it
// before releasing stock.
func classifyChargeError(err error) (Result, error) {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch sErr.Type {
		case stripe.ErrorTypeCard:
			return Result{Status: StatusDeclined, Reason: string(sErr.Code)}, nil
		case stripe.ErrorTypeInvalidRequest:
			return Result{}, fmt.Errorf("stripe rejected the request: %s: %w", sErr.Msg, ErrPermanent)
		case stripe.ErrorTypeAPI:
			return Result{}, fmt.Errorf("stripe api error: %s: %w", sErr.Msg, ErrTransient)
		default:
			return Result{}, fmt.Errorf("stripe error (%s): %s: %w", sErr.Type, sErr.Msg, ErrUnknown)
		}
	}
	// No structured gateway answer: the request may or may not have landed.
	return Result{}, fmt.Errorf("charge failed without gateway response: %v: %w", err, ErrUnknown)
}

func resultFromIntent(pi *stripe.PaymentIntent) (Result, error) {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Result{Status: StatusCompleted, Reference: pi.ID}, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		return Result{Status: StatusDeclined, Reason: string(pi.Status)}, nil
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		// Server-side checkout cannot run 3DS challenges.
		return Result{Status: StatusDeclined, Reason: "authentication required"}, nil
	default:
		// processing et al: not terminal yet.
		return Result{}, fmt.Errorf("payment intent %s in state %s: %w", pi.ID, pi.Status, ErrUnknown)
	}
}
