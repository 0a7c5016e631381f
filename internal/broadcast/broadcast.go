// Package broadcast fans committed stock deltas out to observers. Delivery is
// best-effort, at-most-once, no replay buffer: a disconnected observer misses
// updates until it polls inventory again. Nothing here may affect settlement.
package broadcast

// StockChange is one committed inventory delta.
type StockChange struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
}

// Publisher pushes a delta to some transport. Implementations must not block
// the caller and must swallow their own failures.
type Publisher interface {
	Publish(change StockChange)
}

// Fanout sends every change to all configured publishers.
type Fanout []Publisher

func (f Fanout) Publish(change StockChange) {
	for _, p := range f {
		p.Publish(change)
	}
}
