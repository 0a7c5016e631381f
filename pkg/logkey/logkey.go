// Package logkey holds the shared slog attribute keys so log lines stay
// greppable across packages.
package logkey

const (
	TraceID   = "trace_id"
	ERROR     = "error"
	ProductID = "product_id"
	OrderID   = "order_id"
	Token     = "idempotency_token"
)
