package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/chibuike-kt/risk-engine/internal/circuitbreaker"
	"github.com/chibuike-kt/risk-engine/internal/retry"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic. Writes are retried with
// backoff and guarded by a circuit breaker keyed by topic so a dead broker
// costs one fast failure per request instead of a full retry loop.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	breaker *circuitbreaker.Breaker
	policy  retry.Policy
	logger  *slog.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return newKafkaPublisher(w, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		breaker: circuitbreaker.New(5, 30*time.Second),
		policy:  retry.DefaultPolicy(),
		logger:  logger,
	}
}

// Publish writes msg with key as the partition key.
func (k *KafkaPublisher) Publish(ctx context.Context, key string, msg Message) error {
	value, err := msg.Encode()
	if err != nil {
		return err
	}
	km := kafka.Message{Key: []byte(key), Value: value, Time: msg.OccurredAt}

	err = k.breaker.Execute(k.topic, func() error {
		return retry.Do(ctx, k.policy, func(ctx context.Context) error {
			return k.writer.WriteMessages(ctx, km)
		})
	})
	if err != nil {
		status := "error"
		if errors.Is(err, circuitbreaker.ErrOpen) {
			status = "circuit_open"
		}
		PublishedTotal.WithLabelValues(msg.Type, status).Inc()
		return fmt.Errorf("failed to publish %s to %s: %w", msg.Type, k.topic, err)
	}

	PublishedTotal.WithLabelValues(msg.Type, "ok").Inc()
	k.logger.Debug("event published", "topic", k.topic, "type", msg.Type, "key", key)
	return nil
}

// Close flushes pending writes.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
