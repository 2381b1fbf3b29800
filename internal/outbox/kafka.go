// Package outbox publishes domain events onto Kafka for downstream
// consumers (analytics pipelines, external automations), grounded on
// intelligencedev-manifold's cmd/orchestrator Kafka writer/reader wiring
// (github.com/segmentio/kafka-go). Publishing is fire-and-forget from the
// webhook pipeline's perspective: a broker outage must never fail a
// webhook ACK (spec §5 "Back-pressure").
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

// Message is one outbound domain event.
type Message struct {
	BotID     string          `json:"bot_id"`
	Kind      string          `json:"kind"` // the orchestrator publishes "event_handled"
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher writes Messages to the configured Kafka topic. A nil
// *Publisher is valid and Publish becomes a no-op.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

// NewPublisher builds a Publisher from cfg. Returns (nil, nil) when the
// outbox is disabled or has no brokers configured.
func NewPublisher(cfg config.OutboxConfig) (*Publisher, error) {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil, nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "linebot.events"
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, topic: topic}, nil
}

// Publish writes one Message, keyed by bot id so a consumer can
// partition-preserve per-bot ordering.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if p == nil || p.writer == nil {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.BotID),
		Value: body,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
