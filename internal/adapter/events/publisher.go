package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

const (
	producerName = "orderpay"
	eventVersion = 1
)

// Publisher emits order lifecycle events after they were persisted.
type Publisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}

// Envelope wraps every message written to the lifecycle topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload is the event body shared by all order events.
type OrderPayload struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	MerchantID     string `json:"merchant_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by order id.
type KafkaPublisher struct {
	w      messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher builds a publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish writes event synchronously so callers learn about delivery failures.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.OrderEvent) error {
	value, err := Encode(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.Debug("order event published", slog.String("type", event.Type), slog.String("order_id", event.OrderID))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Encode renders event as an Envelope.
func Encode(event model.OrderEvent) ([]byte, error) {
	payload, err := json.Marshal(OrderPayload{
		OrderID:        event.OrderID,
		GatewayOrderID: event.GatewayOrderID,
		MerchantID:     event.MerchantID,
		CustomerID:     event.CustomerID,
		Status:         string(event.Status),
		Amount:         event.Amount,
		AmountRefunded: event.AmountRefunded,
		Currency:       event.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.Type,
		EventVersion:  eventVersion,
		OccurredAt:    event.OccurredAt,
		Producer:      producerName,
		CorrelationID: event.OrderID,
		Payload:       payload,
	})
}

// NopPublisher drops events when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.OrderEvent) error { return nil }
