package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/latronicstore/latronic1/handlers"
	"github.com/latronicstore/latronic1/internal/broadcast"
	"github.com/latronicstore/latronic1/internal/checkout"
	"github.com/latronicstore/latronic1/internal/config"
	"github.com/latronicstore/latronic1/internal/consul"
	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/internal/ledger"
	"github.com/latronicstore/latronic1/internal/migrations"
	"github.com/latronicstore/latronic1/internal/notify"
	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/internal/payments"
	"github.com/latronicstore/latronic1/internal/stores/kafka"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("service stopped", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, led, ord, cleanup, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	gw, err := payments.NewStripeGateway(cfg.StripeKey, 30*time.Second)
	if err != nil {
		return fmt.Errorf("stripe gateway: %w", err)
	}

	hub := broadcast.NewHub()
	pub := broadcast.Fanout{hub}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := kafka.NewConf(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer k.Close()
		pub = append(pub, broadcast.NewKafkaPublisher(k))
		slog.Info("kafka stock event stream enabled")
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SMTPHost != "" {
		m, err := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername,
			cfg.SMTPPassword, cfg.SMTPFrom, cfg.AdminEmail)
		if err != nil {
			return fmt.Errorf("smtp mailer: %w", err)
		}
		mailer = m
	}

	svc := checkout.NewService(inv, led, gw, ord, pub, mailer, checkout.Config{
		Currency:          cfg.Currency,
		MaxChargeAttempts: cfg.MaxChargeAttempts,
		RetryBackoff:      cfg.RetryBackoff,
	})

	h := handlers.NewHandler(inv, svc, ord, hub, mailer)
	api := http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.API("/v1", cfg.AdminJWTSecret, cfg.PublicDir, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}

	if cfg.ConsulAddress != "" {
		client, err := consul.NewClient(cfg.ConsulAddress)
		if err != nil {
			return err
		}
		serviceID := consul.ServiceID(cfg.ServiceName, cfg.Port)
		if err := consul.RegisterService(client, cfg.ServiceName, serviceID, cfg.Host, cfg.Port); err != nil {
			return err
		}
		defer func() {
			if err := consul.Deregister(client, serviceID); err != nil {
				slog.Error("consul deregister failed", slog.String(logkey.ERROR, err.Error()))
			}
		}()
		slog.Info("registered with consul", slog.String("service_id", serviceID))
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("storefront api listening", slog.String("addr", cfg.Addr()))
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			api.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// buildStores wires the Postgres stores when DATABASE_URL is set, otherwise
// in-memory stores seeded with demo catalog data.
func buildStores(cfg config.Config) (inventory.Store, ledger.Ledger, orders.Repo, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, running on in-memory stores")
		inv := inventory.NewMemStore()
		seedDemoCatalog(inv)
		return inv, ledger.NewMemLedger(), orders.NewMemRepo(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}

	inv, err := inventory.NewConf(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	led, err := ledger.NewConf(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	ord, err := orders.NewConf(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	return inv, led, ord, func() { db.Close() }, nil
}

func seedDemoCatalog(inv *inventory.MemStore) {
	now := time.Now().UTC()
	for _, p := range []inventory.Product{
		{ID: "lt-dmm-01", Title: "Digital Multimeter", Description: "Auto-ranging, true RMS",
			PriceCents: 4599, Stock: 25, Category: "instruments", CreatedAt: now, UpdatedAt: now},
		{ID: "lt-osc-01", Title: "Portable Oscilloscope", Description: "2-channel, 100 MHz",
			PriceCents: 32900, Stock: 8, Category: "instruments", CreatedAt: now, UpdatedAt: now},
		{ID: "lt-psu-01", Title: "Bench Power Supply", Description: "0-30V, 0-5A, linear",
			PriceCents: 12750, Stock: 14, Category: "power", CreatedAt: now, UpdatedAt: now},
		{ID: "lt-sld-01", Title: "Soldering Station", Description: "Temperature controlled, 65W",
			PriceCents: 8999, Stock: 30, Category: "tools", CreatedAt: now, UpdatedAt: now},
	} {
		inv.Seed(p)
	}
	slog.Info("seeded demo catalog", slog.Int("products", 4))
}
