package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/latronicstore/latronic1/internal/checkout"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/pkg/ctxmanage"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

type checkoutLineItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type checkoutRequest struct {
	// IdempotencyToken must be reused when the client retries this same
	// checkout. Generated server-side when absent, and returned in every
	// response so the client can retry safely.
	IdempotencyToken string             `json:"idempotency_token"`
	SourceID         string             `json:"source_id" validate:"required"`
	FirstName        string             `json:"first_name" validate:"required"`
	LastName         string             `json:"last_name" validate:"required"`
	Email            string             `json:"email" validate:"required,email"`
	Address          string             `json:"address" validate:"required"`
	Items            []checkoutLineItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	const maxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("checkout validation failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing payment or customer data"})
		return
	}

	token := req.IdempotencyToken
	if token == "" {
		token = uuid.NewString()
	}

	lines := make([]inventory.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, inventory.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.co.Checkout(c.Request.Context(), checkout.Request{
		Token:    token,
		SourceID: req.SourceID,
		Customer: checkout.Customer{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Address:   req.Address,
		},
		Lines: lines,
	})
	if err != nil {
		h.writeCheckoutError(c, traceId, token, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "order confirmed",
		"idempotency_token": token,
		"order":             order,
	})
}

// writeCheckoutError maps the settlement taxonomy onto HTTP responses. The
// customer never sees a bare internal error.
func (h *Handler) writeCheckoutError(c *gin.Context, traceId, token string, err error) {
	var short *inventory.InsufficientStockError
	var declined *checkout.DeclinedError
	var review *checkout.ManualReviewError

	switch {
	case errors.Is(err, checkout.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid cart"})

	case errors.Is(err, inventory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Product not found"})

	case errors.As(err, &short):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":             "insufficient stock for item " + short.ProductID,
			"product_id":        short.ProductID,
			"available":         short.Available,
			"idempotency_token": token,
		})

	case errors.As(err, &declined):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":             "payment declined",
			"idempotency_token": token,
		})

	case errors.Is(err, checkout.ErrPaymentInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":             "payment for this checkout is still in progress, retry shortly",
			"idempotency_token": token,
		})

	case errors.As(err, &review):
		c.JSON(http.StatusAccepted, gin.H{
			"status":            "payment status pending, you will be contacted",
			"idempotency_token": review.Token,
		})
		c.Abort()

	default:
		slog.Error("checkout failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Token, token), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Checkout failed"})
	}
}

func (h *Handler) GetOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	orderID := c.Param("id")

	order, err := h.ord.Get(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		slog.Error("error in fetching order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, order)
}
