package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/resilience"
)

const eventType = "StockAlertRaised"

// KafkaPublisher writes stock alerts to a topic, keyed by product id so that
// alerts for one product stay ordered. Writes go through a circuit breaker so
// an unavailable broker is not hammered by every crossing.
type KafkaPublisher struct {
	writer  broker.MessageWriter
	breaker *resilience.CircuitBreaker
}

func NewKafkaPublisher(writer broker.MessageWriter, breaker *resilience.CircuitBreaker) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, breaker: breaker}
}

var _ inventory.AlertSink = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, alert *model.StockAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal stock alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.ProductID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "alert-level", Value: []byte(alert.Level)},
		},
		Time: alert.OccurredAt,
	}

	write := func() error {
		return p.writer.WriteMessages(ctx, msg)
	}
	if p.breaker != nil {
		err = p.breaker.Execute(write)
	} else {
		err = write()
	}
	if err != nil {
		return fmt.Errorf("failed to publish stock alert for %s: %w", alert.ProductID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopSink drops every alert. It stands in when no broker is configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, *model.StockAlert) error {
	return nil
}
