package kafka

import "time"

const TopicStockChanged = `storefront.stock-changed`

// StockChangedEvent is published after a committed inventory change.
type StockChangedEvent struct {
	ProductID  string    `json:"product_id"`
	NewStock   int       `json:"new_stock"`
	OccurredAt time.Time `json:"occurred_at"`
}
