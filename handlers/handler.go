package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latronicstore/latronic1/internal/broadcast"
	"github.com/latronicstore/latronic1/internal/checkout"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/notify"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/middleware"
)

type Handler struct {
	inv      inventory.Store
	co       *checkout.Service
	ord      orders.Repo
	hub      *broadcast.Hub
	mailer   notify.Mailer
	validate *validator.Validate
}

func NewHandler(inv inventory.Store, co *checkout.Service, ord orders.Repo,
	hub *broadcast.Hub, mailer notify.Mailer) *Handler {
	return &Handler{
		inv:      inv,
		co:       co,
		ord:      ord,
		hub:      hub,
		mailer:   mailer,
		validate: validator.New(),
	}
}

// API assembles the storefront router. Catalog mutation endpoints are only
// mounted when an admin secret is configured.
func API(endpointPrefix, adminSecret, publicDir string, h *Handler) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if publicDir != "" {
		r.StaticFile("/", filepath.Join(publicDir, "Home.html"))
		r.StaticFile("/card-charge", filepath.Join(publicDir, "card-charge.html"))
		r.Static("/public", publicDir)
	}

	v1 := r.Group(endpointPrefix)
	{
		v1.GET("/products/list", h.ListProducts)
		v1.GET("/products/view/:id", h.GetProduct)
		v1.GET("/products/stock/:id", h.ProductStock)
		v1.POST("/checkout", h.Checkout)
		v1.POST("/contact", h.Contact)
		v1.GET("/stock/stream", h.StockStream)
	}

	if adminSecret == "" {
		slog.Warn("admin secret not configured, catalog mutation endpoints disabled")
		return r
	}
	m, err := middleware.NewMid(adminSecret)
	if err != nil {
		panic(err)
	}
	admin := r.Group(endpointPrefix)
	{
		admin.Use(m.Authentication())
		admin.POST("/products/create", h.CreateProduct)
		admin.PUT("/products/update/:id", h.UpdateProduct)
		admin.DELETE("/products/delete/:id", h.DeleteProduct)
		admin.GET("/orders/view/:id", h.GetOrder)
	}
	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
