// Package metrics exposes the Prometheus instruments shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkout requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	CheckoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "End-to-end checkout settlement duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	StockEventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_event_publish_failed_total",
			Help: "Count of stock change events that could not be published.",
		},
	)
)
