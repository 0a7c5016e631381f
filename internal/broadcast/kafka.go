package broadcast

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/latronicstore/latronic1/internal/stores/kafka"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

// KafkaPublisher forwards stock changes to the storefront.stock-changed topic,
// keyed by product id so consumers see per-product order.
type KafkaPublisher struct {
	k *kafka.Conf
}

func NewKafkaPublisher(k *kafka.Conf) *KafkaPublisher {
	return &KafkaPublisher{k: k}
}

func (p *KafkaPublisher) Publish(change StockChange) {
	jsonData, err := json.Marshal(kafka.StockChangedEvent{
		ProductID:  change.ProductID,
		NewStock:   change.NewStock,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("failed to marshal stock changed event", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := p.k.ProduceMessage(kafka.TopicStockChanged, []byte(change.ProductID), jsonData); err != nil {
		slog.Error("failed to produce stock changed event",
			slog.String(logkey.ProductID, change.ProductID),
			slog.String(logkey.ERROR, err.Error()),
		)
	}
}
