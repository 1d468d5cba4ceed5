package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/salon-booking/pkg/circuitbreaker"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
)

type Config struct {
	Brokers      []string
	BatchTimeout time.Duration
	// GroupID is the consumer group used by Subscribe.
	GroupID string
}

// KafkaBroker writes each message to the topic named by channel, keyed by the
// message id when the payload is a messaging.Message.
type KafkaBroker struct {
	writer  *kafka.Writer
	brokers []string
	groupID string
	cb      *circuitbreaker.CircuitBreaker
}

func NewKafkaBroker(config Config) (messaging.Broker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &KafkaBroker{
		writer:  writer,
		brokers: config.Brokers,
		groupID: config.GroupID,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "kafka-broker",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := kafka.Message{
		Topic: channel,
		Value: data,
		Time:  time.Now(),
	}
	if m, ok := message.(messaging.Message); ok {
		msg.Key = []byte(m.ID)
	}

	return b.cb.Execute(func() error {
		if err := b.writer.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to write message to Kafka: %w", err)
		}
		return nil
	})
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

// Ping dials the first reachable broker.
func (b *KafkaBroker) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Subscribe reads the topic named by channel as part of the configured
// consumer group. Offsets are committed after handler returns, whatever it
// returned.
func (b *KafkaBroker) Subscribe(ctx context.Context, channel string, handler messaging.Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  b.groupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message from Kafka: %w", err)
		}
		_ = handler(ctx, msg.Value)
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to commit Kafka offset: %w", err)
		}
	}
}
