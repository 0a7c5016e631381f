// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// ServiceName and Port identify this instance to Consul and the log line.
	ServiceName string
	Host        string
	Port        int

	// DatabaseURL selects the Postgres-backed stores. When empty the service
	// runs on in-memory stores seeded with demo catalog data.
	DatabaseURL string

	StripeKey         string
	Currency          string
	MaxChargeAttempts int
	RetryBackoff      time.Duration

	// KafkaBrokers enables the stock-changed event stream when non-empty.
	KafkaBrokers []string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AdminEmail   string

	// AdminJWTSecret guards catalog mutation endpoints. Empty disables them.
	AdminJWTSecret string

	ConsulAddress string

	// PublicDir serves the static storefront pages when set.
	PublicDir string
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, reading environment directly")
	}

	cfg := Config{
		ServiceName:       envOr("SERVICE_NAME", "storefront-api"),
		Host:              envOr("HOST", "0.0.0.0"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StripeKey:         os.Getenv("STRIPE_TEST_KEY"),
		Currency:          envOr("CURRENCY", "usd"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          os.Getenv("SMTP_PORT"),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:          os.Getenv("SMTP_FROM"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		ConsulAddress:     os.Getenv("CONSUL_ADDR"),
		PublicDir:         os.Getenv("PUBLIC_DIR"),
		MaxChargeAttempts: 3,
		RetryBackoff:      500 * time.Millisecond,
	}

	port, err := strconv.Atoi(envOr("APP_PORT", "8085"))
	if err != nil || port <= 0 {
		return Config{}, fmt.Errorf("invalid APP_PORT: %q", os.Getenv("APP_PORT"))
	}
	cfg.Port = port

	if v := os.Getenv("MAX_CHARGE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_CHARGE_ATTEMPTS: %q", v)
		}
		cfg.MaxChargeAttempts = n
	}
	if v := os.Getenv("CHARGE_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid CHARGE_RETRY_BACKOFF: %q", v)
		}
		cfg.RetryBackoff = d
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.StripeKey == "" {
		return Config{}, fmt.Errorf("STRIPE_TEST_KEY is required")
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
