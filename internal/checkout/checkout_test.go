package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/latronicstore/latronic1/internal/broadcast"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/ledger"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/internal/payments"
)

// fakeGateway scripts gateway behavior per call. The default is an immediate
// completed charge.
type fakeGateway struct {
	mu          sync.Mutex
	chargeCalls int
	statusCalls int
	charge      func(ctx context.Context, call int) (payments.Result, error)
	status      func(ctx context.Context, call int) (payments.Result, error)
}

func (g *fakeGateway) Charge(ctx context.Context, _ payments.ChargeRequest) (payments.Result, error) {
	g.mu.Lock()
	g.chargeCalls++
	n := g.chargeCalls
	g.mu.Unlock()
	if g.charge == nil {
		return payments.Result{Status: payments.StatusCompleted, Reference: "pi_fake"}, nil
	}
	return g.charge(ctx, n)
}

func (g *fakeGateway) Status(ctx context.Context, _ payments.ChargeRequest) (payments.Result, error) {
	g.mu.Lock()
	g.statusCalls++
	n := g.statusCalls
	g.mu.Unlock()
	if g.status == nil {
		return payments.Result{}, payments.ErrUnknown
	}
	return g.status(ctx, n)
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chargeCalls, g.statusCalls
}

type env struct {
	svc *Service
	inv *inventory.MemStore
	led *ledger.MemLedger
	ord *orders.MemRepo
	hub *broadcast.Hub
}

func newEnv(t *testing.T, gw payments.Gateway, stock int) *env {
	t.Helper()
	inv := inventory.NewMemStore()
	inv.Seed(inventory.Product{ID: "P", Title: "Soldering Iron", PriceCents: 1000, Stock: stock})
	led := ledger.NewMemLedger()
	ord := orders.NewMemRepo()
	hub := broadcast.NewHub()
	svc := NewService(inv, led, gw, ord, hub, nil, Config{
		MaxChargeAttempts: 3,
		RetryBackoff:      time.Millisecond,
	})
	return &env{svc: svc, inv: inv, led: led, ord: ord, hub: hub}
}

func request(token string, qty int) Request {
	return Request{
		Token:    token,
		SourceID: "pm_card",
		Customer: Customer{FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com", Address: "12 Main St, Austin TX"},
		Lines:    []inventory.CartLine{{ProductID: "P", Quantity: qty}},
	}
}

func stockOf(t *testing.T, e *env, id string) int {
	t.Helper()
	p, err := e.inv.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	return p.Stock
}

func TestCheckoutSettles(t *testing.T) {
	gw := &fakeGateway{}
	e := newEnv(t, gw, 5)
	ch, cancel := e.hub.Subscribe()
	defer cancel()

	o, err := e.svc.Checkout(context.Background(), request("T1", 2))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if o.TotalCents != 2000 {
		t.Errorf("total = %d, want 2000", o.TotalCents)
	}
	if o.GatewayRef != "pi_fake" {
		t.Errorf("gateway ref = %s", o.GatewayRef)
	}
	if got := stockOf(t, e, "P"); got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}

	att, err := e.led.Lookup(context.Background(), "T1")
	if err != nil || att.State != ledger.StateCompleted {
		t.Errorf("ledger state = %v (%v), want completed", att.State, err)
	}

	stored, err := e.ord.GetByToken(context.Background(), "T1")
	if err != nil || stored.ID != o.ID {
		t.Errorf("stored order = %+v (%v)", stored, err)
	}

	select {
	case delta := <-ch:
		if delta.ProductID != "P" || delta.NewStock != 3 {
			t.Errorf("broadcast delta = %+v, want {P 3}", delta)
		}
	default:
		t.Error("no stock delta broadcast after settlement")
	}
}

func TestCheckoutInvalidInput(t *testing.T) {
	gw := &fakeGateway{}
	e := newEnv(t, gw, 5)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty cart", Request{Token: "T", SourceID: "pm", Lines: nil}},
		{"zero quantity", request("T", 0)},
		{"negative quantity", request("T", -1)},
		{"missing token", func() Request { r := request("", 1); return r }()},
		{"missing source", func() Request { r := request("T", 1); r.SourceID = ""; return r }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Checkout(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if got := stockOf(t, e, "P"); got != 5 {
		t.Errorf("stock = %d, want 5 (validation has no side effects)", got)
	}
	if calls, _ := gw.counts(); calls != 0 {
		t.Errorf("gateway calls = %d, want 0", calls)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	gw := &fakeGateway{}
	e := newEnv(t, gw, 1)

	_, err := e.svc.Checkout(context.Background(), request("T1", 2))
	var short *inventory.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if short.ProductID != "P" {
		t.Errorf("short product = %s, want P", short.ProductID)
	}
	if got := stockOf(t, e, "P"); got != 1 {
		t.Errorf("stock = %d, want 1 (no side effects)", got)
	}
	if calls, _ := gw.counts(); calls != 0 {
		t.Errorf("gateway calls = %d, want 0", calls)
	}
}

// Stock 1, two concurrent checkouts for the last unit: exactly one settles,
// the other is rejected for insufficient stock.
func TestConcurrentCheckoutsLastUnit(t *testing.T) {
	gw := &fakeGateway{}
	e := newEnv(t, gw, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := []string{"T-a", "T-b"}[i]
			_, errs[i] = e.svc.Checkout(context.Background(), request(tok, 1))
		}(i)
	}
	wg.Wait()

	settled, rejected := 0, 0
	var short *inventory.InsufficientStockError
	for _, err := range errs {
		switch {
		case err == nil:
			settled++
		case errors.As(err, &short):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if settled != 1 || rejected != 1 {
		t.Errorf("settled = %d, rejected = %d, want 1/1", settled, rejected)
	}
	if got := stockOf(t, e, "P"); got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
}

// Token "T1", cart of 2 at $10.00. Gateway declines: PaymentError, stock
// restored, no order created.
func TestDeclineReleasesReservation(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{Status: payments.StatusDeclined, Reason: "card_declined"}, nil
		},
	}
	e := newEnv(t, gw, 5)

	_, err := e.svc.Checkout(context.Background(), request("T1", 2))
	var declined *DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("err = %v, want DeclinedError", err)
	}
	if got := stockOf(t, e, "P"); got != 5 {
		t.Errorf("stock = %d, want 5 (restored after decline)", got)
	}
	if _, err := e.ord.GetByToken(context.Background(), "T1"); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("order lookup = %v, want ErrNotFound", err)
	}
	att, err := e.led.Lookup(context.Background(), "T1")
	if err != nil || att.State != ledger.StateDeclined {
		t.Errorf("ledger state = %v (%v), want declined", att.State, err)
	}
}

// A permanent gateway error is authoritative: the ledger records errored, the
// reservation is released, no status query or retry happens, and a replay with
// the same token never reaches the gateway again.
func TestPermanentErrorRecordedAndReleased(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{}, fmt.Errorf("bad payment method: %w", payments.ErrPermanent)
		},
	}
	e := newEnv(t, gw, 5)
	ctx := context.Background()

	_, err := e.svc.Checkout(ctx, request("T1", 2))
	var declined *DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("err = %v, want DeclinedError", err)
	}
	if charges, statuses := gw.counts(); charges != 1 || statuses != 0 {
		t.Errorf("calls = %d charges / %d statuses, want 1/0", charges, statuses)
	}
	if got := stockOf(t, e, "P"); got != 5 {
		t.Errorf("stock = %d, want 5 (restored after permanent error)", got)
	}
	att, err := e.led.Lookup(ctx, "T1")
	if err != nil || att.State != ledger.StateErrored {
		t.Errorf("ledger state = %v (%v), want errored", att.State, err)
	}

	if _, err := e.svc.Checkout(ctx, request("T1", 2)); !errors.As(err, &declined) {
		t.Fatalf("replay err = %v, want DeclinedError", err)
	}
	if charges, _ := gw.counts(); charges != 1 {
		t.Errorf("gateway charge calls after replay = %d, want 1", charges)
	}
}

// Repeating the declined checkout with the same token replays the stored
// outcome without a second gateway call, and the retry's fresh reservation is
// released.
func TestReplayDeclinedToken(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{Status: payments.StatusDeclined, Reason: "card_declined"}, nil
		},
	}
	e := newEnv(t, gw, 5)
	ctx := context.Background()

	if _, err := e.svc.Checkout(ctx, request("T1", 2)); err == nil {
		t.Fatal("first checkout should decline")
	}
	_, err := e.svc.Checkout(ctx, request("T1", 2))
	var declined *DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("replay err = %v, want DeclinedError", err)
	}

	if calls, _ := gw.counts(); calls != 1 {
		t.Errorf("gateway charge calls = %d, want 1 (outcome replayed)", calls)
	}
	if got := stockOf(t, e, "P"); got != 5 {
		t.Errorf("stock = %d, want 5 (retry reservation released)", got)
	}
}

// Retrying a completed checkout returns the original order; at most one
// charge ever reaches the gateway for one token.
func TestReplayCompletedToken(t *testing.T) {
	gw := &fakeGateway{}
	e := newEnv(t, gw, 5)
	ctx := context.Background()

	first, err := e.svc.Checkout(ctx, request("T1", 2))
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := e.svc.Checkout(ctx, request("T1", 2))
	if err != nil {
		t.Fatalf("replay checkout: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay returned order %s, want original %s", second.ID, first.ID)
	}
	if calls, _ := gw.counts(); calls != 1 {
		t.Errorf("gateway charge calls = %d, want 1", calls)
	}
	if got := stockOf(t, e, "P"); got != 3 {
		t.Errorf("stock = %d, want 3 (decremented exactly once)", got)
	}
}

func TestTransientErrorsRetriedThenSettled(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, call int) (payments.Result, error) {
			if call < 3 {
				return payments.Result{}, payments.ErrTransient
			}
			return payments.Result{Status: payments.StatusCompleted, Reference: "pi_retry"}, nil
		},
	}
	e := newEnv(t, gw, 5)

	o, err := e.svc.Checkout(context.Background(), request("T1", 1))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if o.GatewayRef != "pi_retry" {
		t.Errorf("gateway ref = %s", o.GatewayRef)
	}
	charges, statuses := gw.counts()
	if charges != 3 || statuses != 0 {
		t.Errorf("calls = %d charges / %d statuses, want 3/0", charges, statuses)
	}
}

// A timed-out charge resolved as completed by the status query settles
// normally instead of releasing sold stock.
func TestUnknownResolvedByStatusQuery(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{}, payments.ErrUnknown
		},
		status: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{Status: payments.StatusCompleted, Reference: "pi_resolved"}, nil
		},
	}
	e := newEnv(t, gw, 5)

	o, err := e.svc.Checkout(context.Background(), request("T1", 1))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if o.GatewayRef != "pi_resolved" {
		t.Errorf("gateway ref = %s", o.GatewayRef)
	}
	charges, statuses := gw.counts()
	if charges != 1 || statuses != 1 {
		t.Errorf("calls = %d charges / %d statuses, want 1/1", charges, statuses)
	}
	if got := stockOf(t, e, "P"); got != 4 {
		t.Errorf("stock = %d, want 4", got)
	}
}

// When neither the charge nor the status query resolves, inventory stays
// reserved and the caller gets a manual review error, never a guessed release.
func TestUnresolvedOutcomeLeavesStockReserved(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			return payments.Result{}, payments.ErrUnknown
		},
	}
	e := newEnv(t, gw, 5)

	_, err := e.svc.Checkout(context.Background(), request("T1", 2))
	var review *ManualReviewError
	if !errors.As(err, &review) {
		t.Fatalf("err = %v, want ManualReviewError", err)
	}
	if review.Token != "T1" {
		t.Errorf("review token = %s, want T1", review.Token)
	}
	if got := stockOf(t, e, "P"); got != 3 {
		t.Errorf("stock = %d, want 3 (still reserved, not released)", got)
	}
	att, err := e.led.Lookup(context.Background(), "T1")
	if err != nil || att.State != ledger.StateSubmitted {
		t.Errorf("ledger state = %v (%v), want submitted (open for reconciliation)", att.State, err)
	}
	if _, err := e.ord.GetByToken(context.Background(), "T1"); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("order lookup = %v, want ErrNotFound", err)
	}
}

// Client disconnection does not cancel settlement: the charge still runs and
// the order still settles under an already-canceled request context.
func TestClientCancellationDoesNotAbortSettlement(t *testing.T) {
	gw := &fakeGateway{
		charge: func(ctx context.Context, _ int) (payments.Result, error) {
			if err := ctx.Err(); err != nil {
				return payments.Result{}, err
			}
			return payments.Result{Status: payments.StatusCompleted, Reference: "pi_detached"}, nil
		},
	}
	e := newEnv(t, gw, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, err := e.svc.Checkout(ctx, request("T1", 1))
	if err != nil {
		t.Fatalf("Checkout under canceled context: %v", err)
	}
	if o.GatewayRef != "pi_detached" {
		t.Errorf("gateway ref = %s", o.GatewayRef)
	}
}

// Two concurrent checkouts with the same token: at most one charge reaches
// the gateway and exactly one unit of stock is sold.
func TestConcurrentSameToken(t *testing.T) {
	gw := &fakeGateway{
		charge: func(_ context.Context, _ int) (payments.Result, error) {
			time.Sleep(20 * time.Millisecond)
			return payments.Result{Status: payments.StatusCompleted, Reference: "pi_race"}, nil
		},
	}
	e := newEnv(t, gw, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Checkout(context.Background(), request("T1", 1))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrPaymentInProgress) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if calls, _ := gw.counts(); calls != 1 {
		t.Errorf("gateway charge calls = %d, want 1", calls)
	}
	if got := stockOf(t, e, "P"); got != 4 {
		t.Errorf("stock = %d, want 4 (one unit sold once)", got)
	}
}

func TestSurchargeAppliedByAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    int64
	}{
		{"connecticut address pays surcharge", "45 Elm St, Hartford CT 06103", 2000 + 127},
		{"other address does not", "12 Main St, Austin, Texas", 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			e := newEnv(t, gw, 5)
			req := request("T1", 2)
			req.Customer.Address = tt.address

			o, err := e.svc.Checkout(context.Background(), req)
			if err != nil {
				t.Fatalf("Checkout: %v", err)
			}
			if o.TotalCents != tt.want {
				t.Errorf("total = %d, want %d", o.TotalCents, tt.want)
			}
		})
	}
}
