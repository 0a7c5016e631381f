package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/latronicstore/latronic1/internal/broadcast"
	"github.com/latronicstore/latronic1/internal/checkout"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/ledger"
	"github.com/latronicstore/latronic1/internal/notify"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/internal/payments"
)

const testAdminSecret = "test-admin-secret"

type scriptedGateway struct {
	charge func(ctx context.Context, req payments.ChargeRequest) (payments.Result, error)
}

func (g *scriptedGateway) Charge(ctx context.Context, req payments.ChargeRequest) (payments.Result, error) {
	if g.charge != nil {
		return g.charge(ctx, req)
	}
	return payments.Result{Status: payments.StatusCompleted, Reference: "ch_test"}, nil
}

func (g *scriptedGateway) Status(ctx context.Context, req payments.ChargeRequest) (payments.Result, error) {
	return payments.Result{}, payments.ErrUnknown
}

func newTestRouter(t *testing.T, gw payments.Gateway) (*gin.Engine, *inventory.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	inv := inventory.NewMemStore()
	inv.Seed(inventory.Product{ID: "P", Title: "Oscilloscope", PriceCents: 1000, Stock: 5})

	if gw == nil {
		gw = &scriptedGateway{}
	}
	hub := broadcast.NewHub()
	repo := orders.NewMemRepo()
	svc := checkout.NewService(inv, ledger.NewMemLedger(), gw, repo,
		hub, notify.LogMailer{}, checkout.Config{RetryBackoff: time.Millisecond})

	h := NewHandler(inv, svc, repo, hub, notify.LogMailer{})
	return API("/v1", testAdminSecret, "", h), inv
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"roles": []string{"ADMIN"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func checkoutBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"idempotency_token": "tok-1",
		"source_id":         "cnon:card-ok",
		"first_name":        "Ada",
		"last_name":         "Lovelace",
		"email":             "ada@example.com",
		"address":           "12 Main St, Hartford, CT",
		"items":             items,
	}
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := doJSON(t, r, http.MethodGet, "/ping", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	r, inv := newTestRouter(t, nil)

	body := checkoutBody(map[string]any{"product_id": "P", "quantity": 2})
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Status string `json:"status"`
		Token  string `json:"idempotency_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "order confirmed" || resp.Token != "tok-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	p, err := inv.GetProduct(context.Background(), "P")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 3 {
		t.Fatalf("stock = %d, want 3", p.Stock)
	}
}

func TestCheckoutValidation(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := checkoutBody(map[string]any{"product_id": "P", "quantity": 1})
	delete(body, "email")
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := checkoutBody(map[string]any{"product_id": "missing", "quantity": 1})
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := checkoutBody(map[string]any{"product_id": "P", "quantity": 50})
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", w.Code)
	}

	var resp struct {
		ProductID string `json:"product_id"`
		Available int    `json:"available"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ProductID != "P" || resp.Available != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCheckoutDeclined(t *testing.T) {
	gw := &scriptedGateway{charge: func(context.Context, payments.ChargeRequest) (payments.Result, error) {
		return payments.Result{Status: payments.StatusDeclined, Reason: "card_declined"}, nil
	}}
	r, inv := newTestRouter(t, gw)

	body := checkoutBody(map[string]any{"product_id": "P", "quantity": 1})
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("got %d, want 402", w.Code)
	}

	p, _ := inv.GetProduct(context.Background(), "P")
	if p.Stock != 5 {
		t.Fatalf("stock = %d, want 5 after decline", p.Stock)
	}
}

func TestCheckoutUnresolvedOutcome(t *testing.T) {
	gw := &scriptedGateway{charge: func(context.Context, payments.ChargeRequest) (payments.Result, error) {
		return payments.Result{}, payments.ErrUnknown
	}}
	r, _ := newTestRouter(t, gw)

	body := checkoutBody(map[string]any{"product_id": "P", "quantity": 1})
	w := doJSON(t, r, http.MethodPost, "/v1/checkout", body, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"idempotency_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "tok-1" {
		t.Fatalf("token = %q, want tok-1", resp.Token)
	}
}

func TestProductEndpointsPublic(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodGet, "/v1/products/list", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d, want 200", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/products/view/P", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view: got %d, want 200", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/products/stock/P", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stock: got %d, want 200", w.Code)
	}
	var resp struct {
		Stock int `json:"stock"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stock != 5 {
		t.Fatalf("stock = %d, want 5", resp.Stock)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := map[string]any{"title": "Multimeter", "price_cents": 4599, "stock": 10}

	w := doJSON(t, r, http.MethodPost, "/v1/products/create", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/products/create", body,
		map[string]string{"Authorization": adminToken(t)})
	if w.Code != http.StatusOK {
		t.Fatalf("with token: got %d, want 200, body %s", w.Code, w.Body.String())
	}
}

func TestCreateProductValidation(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := map[string]any{"title": "No price"}
	w := doJSON(t, r, http.MethodPost, "/v1/products/create", body,
		map[string]string{"Authorization": adminToken(t)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestContactForm(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/v1/contact",
		map[string]any{"name": "Ada", "email": "ada@example.com", "message": "hello"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/contact",
		map[string]any{"name": "Ada"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}
