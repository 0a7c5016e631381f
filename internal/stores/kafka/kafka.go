// Package kafka wraps the franz-go producer used for outbound storefront
// events. Delivery is best-effort: failures are logged and counted, never
// surfaced to the caller.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/latronicstore/latronic1/internal/metrics"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

type Conf struct {
	client *kgo.Client
}

func NewConf(brokers []string) (*Conf, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Conf{client: client}, nil
}

// ProduceMessage hands the record to the async producer. The callback only
// logs; a lost event is acceptable, observers re-sync by polling inventory.
func (c *Conf) ProduceMessage(topic string, key, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	c.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			metrics.StockEventPublishFailures.Inc()
			slog.Error("failed to produce kafka record",
				slog.String("topic", r.Topic),
				slog.String(logkey.ERROR, err.Error()),
			)
		}
	})
	return nil
}

func (c *Conf) Close() {
	c.client.Close()
}
