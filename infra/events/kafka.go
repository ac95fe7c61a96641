package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the bus needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus publishes payment events to a single Kafka topic
type Bus struct {
	writer MessageWriter
	topic  string
}

// New returns a bus writing to topic on brokers, or nil when no broker is configured.
// The writer is asynchronous: Publish only enqueues, delivery failures are logged.
func New(brokers []string, topic string) *Bus {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &Bus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
			Async:                  true,
			Completion:             deliveryReport(topic),
		},
		topic: topic,
	}
}

func deliveryReport(topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		logger.Error("Payment event delivery failed", err, logger.LogContext{
			Fields: map[string]any{"topic": topic, "messages": len(msgs)},
		})
	}
}

// NewWithWriter builds a bus around an existing writer
func NewWithWriter(w MessageWriter, topic string) *Bus {
	return &Bus{writer: w, topic: topic}
}

// Topic returns the destination topic
func (b *Bus) Topic() string {
	return b.topic
}

// Publish JSON-encodes event and writes it keyed by key, so events of one order stay ordered
func (b *Bus) Publish(ctx context.Context, key string, event any) error {
	if b == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.writer.Close()
}
