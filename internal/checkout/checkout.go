// Package checkout sequences settlement: reserve stock, charge the gateway
// exactly once per idempotency token, then confirm or release the reservation
// based on an authoritative outcome.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latronicstore/latronic1/internal/broadcast"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/ledger"
	"github.com/latronicstore/latronic1/internal/metrics"
	"github.com/latronicstore/latronic1/internal/notify"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/internal/payments"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

// Connecticut orders carry a 6.35% surcharge, detected by a substring match on
// the free-text address. Known to be fragile; kept as-is because the intended
// jurisdiction rule is a business input, not ours to redesign.
const (
	surchargeAddressMark  = "CT"
	surchargeRateBasisPts = 635
)

type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Address   string
}

// Request is one checkout attempt. Token must stay identical across client
// retries of the same logical checkout so retries replay instead of re-charge.
type Request struct {
	Token    string
	SourceID string
	Customer Customer
	Lines    []inventory.CartLine
}

type Config struct {
	Currency          string
	MaxChargeAttempts int
	RetryBackoff      time.Duration
}

// Service is the settlement orchestrator.
type Service struct {
	inv    inventory.Store
	led    ledger.Ledger
	gw     payments.Gateway
	ord    orders.Repo
	pub    broadcast.Publisher
	mailer notify.Mailer
	cfg    Config
}

func NewService(inv inventory.Store, led ledger.Ledger, gw payments.Gateway,
	ord orders.Repo, pub broadcast.Publisher, mailer notify.Mailer, cfg Config) *Service {

	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.MaxChargeAttempts <= 0 {
		cfg.MaxChargeAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Service{inv: inv, led: led, gw: gw, ord: ord, pub: pub, mailer: mailer, cfg: cfg}
}

// Checkout runs one settlement to completion and records outcome metrics.
func (s *Service) Checkout(ctx context.Context, req Request) (*orders.Order, error) {
	start := time.Now()
	o, err := s.settle(ctx, req)
	metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
	metrics.CheckoutTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return o, err
}

func (s *Service) settle(ctx context.Context, req Request) (*orders.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Reserve before the external call so stock can never oversell while a
	// charge is in flight. No side effects happen on failure here.
	reservation, err := s.inv.TryReserve(ctx, req.Lines)
	if err != nil {
		var short *inventory.InsufficientStockError
		if errors.As(err, &short) || errors.Is(err, inventory.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reservation failed: %w", err)
	}

	// From here on the client disconnecting must not abort settlement: a
	// charge left half-done is worse than finishing work nobody awaits.
	ctx = context.WithoutCancel(ctx)

	total := reservation.SubtotalCents() + surchargeCents(reservation.SubtotalCents(), req.Customer.Address)

	attempt, created, err := s.led.Begin(ctx, req.Token, total, s.cfg.Currency)
	if err != nil {
		s.release(ctx, reservation)
		return nil, fmt.Errorf("ledger begin failed: %w", err)
	}
	if !created {
		return s.replay(ctx, req.Token, attempt, total, reservation)
	}

	result, err := s.charge(ctx, payments.ChargeRequest{
		Token:        req.Token,
		AmountCents:  total,
		Currency:     s.cfg.Currency,
		SourceID:     req.SourceID,
		ReceiptEmail: req.Customer.Email,
	})
	if err != nil {
		if errors.Is(err, payments.ErrPermanent) {
			// The gateway answered: the charge definitively did not happen.
			if cerr := s.led.Complete(ctx, req.Token, ledger.StateErrored, ""); cerr != nil {
				return nil, &ManualReviewError{Token: req.Token, Cause: cerr}
			}
			s.release(ctx, reservation)
			return nil, &DeclinedError{Reason: err.Error()}
		}
		// No authoritative outcome: leave the reservation pending and the
		// ledger entry open for reconciliation. Releasing on ambiguity
		// could give away stock that was rightfully sold.
		slog.Error("checkout requires manual review",
			slog.String(logkey.Token, req.Token),
			slog.String(logkey.ERROR, err.Error()),
		)
		return nil, &ManualReviewError{Token: req.Token, Cause: err}
	}

	if result.Status == payments.StatusDeclined {
		if err := s.led.Complete(ctx, req.Token, ledger.StateDeclined, ""); err != nil {
			return nil, &ManualReviewError{Token: req.Token, Cause: err}
		}
		s.release(ctx, reservation)
		return nil, &DeclinedError{Reason: result.Reason}
	}

	return s.commit(ctx, req, reservation, total, result.Reference)
}

// replay handles a token the ledger already knows: the payment outcome is the
// stored one, never recomputed, and the reservation made by this call is
// redundant and released.
func (s *Service) replay(ctx context.Context, token string, attempt ledger.PaymentAttempt,
	total int64, reservation *inventory.Reservation) (*orders.Order, error) {

	if attempt.AmountCents != total {
		slog.Warn("idempotency token replayed with a different amount",
			slog.String(logkey.Token, token),
			slog.Int64("stored_amount", attempt.AmountCents),
			slog.Int64("request_amount", total),
		)
	}
	s.release(ctx, reservation)

	switch attempt.State {
	case ledger.StateCompleted:
		o, err := s.ord.GetByToken(ctx, token)
		if err != nil {
			// Payment completed but no order on file: reconcile by hand.
			return nil, &ManualReviewError{Token: token, Cause: err}
		}
		return &o, nil
	case ledger.StateDeclined, ledger.StateErrored:
		return nil, &DeclinedError{Reason: "payment previously " + string(attempt.State)}
	default:
		return nil, ErrPaymentInProgress
	}
}

// charge submits with bounded retries on transient errors, then resolves any
// remaining ambiguity with one authoritative status query. It returns a
// permanent error as-is (the gateway answered) and anything else only when
// the outcome is genuinely unknowable right now.
func (s *Service) charge(ctx context.Context, req payments.ChargeRequest) (payments.Result, error) {
	var result payments.Result
	var err error

	for attempt := 1; ; attempt++ {
		result, err = s.gw.Charge(ctx, req)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, payments.ErrPermanent) {
			return payments.Result{}, err
		}
		if errors.Is(err, payments.ErrTransient) && attempt < s.cfg.MaxChargeAttempts {
			slog.Warn("transient gateway error, retrying with same token",
				slog.String(logkey.Token, req.Token),
				slog.Int("attempt", attempt),
				slog.String(logkey.ERROR, err.Error()),
			)
			time.Sleep(s.cfg.RetryBackoff * time.Duration(attempt))
			continue
		}
		break
	}

	return s.gw.Status(ctx, req)
}

func (s *Service) commit(ctx context.Context, req Request, reservation *inventory.Reservation,
	total int64, gatewayRef string) (*orders.Order, error) {

	if err := s.led.Complete(ctx, req.Token, ledger.StateCompleted, gatewayRef); err != nil {
		// Money moved; do not release. Conflicts and write failures both
		// land in reconciliation.
		return nil, &ManualReviewError{Token: req.Token, Cause: err}
	}
	if err := s.inv.Confirm(ctx, reservation); err != nil {
		return nil, &ManualReviewError{Token: req.Token, Cause: err}
	}

	o := orders.Order{
		ID:            uuid.NewString(),
		ReservationID: reservation.ID,
		PaymentToken:  req.Token,
		GatewayRef:    gatewayRef,
		TrackingID:    newTrackingID(),
		FirstName:     req.Customer.FirstName,
		LastName:      req.Customer.LastName,
		Email:         req.Customer.Email,
		Address:       req.Customer.Address,
		Lines:         reservation.Lines,
		TotalCents:    total,
		SettledAt:     time.Now().UTC(),
	}
	if err := s.ord.Create(ctx, o); err != nil {
		// Charged and confirmed but no durable order record.
		return nil, &ManualReviewError{Token: req.Token, Cause: err}
	}

	slog.Info("checkout settled",
		slog.String(logkey.OrderID, o.ID),
		slog.String(logkey.Token, req.Token),
		slog.Int64("total_cents", total),
	)

	s.broadcastDeltas(ctx, reservation)
	s.sendEmails(&o)
	return &o, nil
}

// broadcastDeltas publishes the new stock level of every settled line.
// Best-effort: runs only after the committed outcome, never fails settlement.
func (s *Service) broadcastDeltas(ctx context.Context, reservation *inventory.Reservation) {
	if s.pub == nil {
		return
	}
	for _, l := range reservation.Lines {
		p, err := s.inv.GetProduct(ctx, l.ProductID)
		if err != nil {
			slog.Error("failed to read stock for broadcast",
				slog.String(logkey.ProductID, l.ProductID),
				slog.String(logkey.ERROR, err.Error()),
			)
			continue
		}
		s.pub.Publish(broadcast.StockChange{ProductID: p.ID, NewStock: p.Stock})
	}
}

func (s *Service) sendEmails(o *orders.Order) {
	if s.mailer == nil {
		return
	}
	go func() {
		if err := s.mailer.SendReceipt(o); err != nil {
			slog.Error("failed to send receipt email",
				slog.String(logkey.OrderID, o.ID), slog.String(logkey.ERROR, err.Error()))
		}
		if err := s.mailer.SendSaleAlert(o); err != nil {
			slog.Error("failed to send sale alert email",
				slog.String(logkey.OrderID, o.ID), slog.String(logkey.ERROR, err.Error()))
		}
	}()
}

// release is the compensating action after an authoritative non-completed
// outcome. A failed release is logged; the reservation row keeps the truth.
func (s *Service) release(ctx context.Context, reservation *inventory.Reservation) {
	if err := s.inv.Release(ctx, reservation); err != nil {
		slog.Error("failed to release reservation",
			slog.String("reservation_id", reservation.ID),
			slog.String(logkey.ERROR, err.Error()),
		)
	}
}

func validate(req Request) error {
	if req.Token == "" {
		return fmt.Errorf("%w: missing idempotency token", ErrInvalidInput)
	}
	if req.SourceID == "" {
		return fmt.Errorf("%w: missing payment source", ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return fmt.Errorf("%w: empty cart", ErrInvalidInput)
	}
	for _, l := range req.Lines {
		if l.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrInvalidInput)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidInput, l.ProductID)
		}
	}
	return nil
}

func surchargeCents(subtotalCents int64, address string) int64 {
	if !strings.Contains(strings.ToUpper(address), surchargeAddressMark) {
		return 0
	}
	// Half-up rounding in integer cents.
	return (subtotalCents*surchargeRateBasisPts + 5000) / 10000
}

func newTrackingID() string {
	return "LT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func outcomeLabel(err error) string {
	var short *inventory.InsufficientStockError
	var declined *DeclinedError
	var review *ManualReviewError
	switch {
	case err == nil:
		return "settled"
	case errors.Is(err, ErrInvalidInput), errors.As(err, &short), errors.Is(err, inventory.ErrNotFound):
		return "rejected"
	case errors.As(err, &declined):
		return "declined"
	case errors.As(err, &review):
		return "manual_review"
	case errors.Is(err, ErrPaymentInProgress):
		return "in_progress"
	default:
		return "error"
	}
}
