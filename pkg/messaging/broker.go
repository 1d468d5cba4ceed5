package messaging

import (
	"context"
	"time"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Handler processes one raw message. A returned error is logged by the
// subscriber and does not stop the subscription.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber delivers messages from channel to handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
}

// Pinger is implemented by brokers that can report their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message is the envelope every published event is wrapped in.
type Message struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// NopBroker drops every message.
type NopBroker struct{}

func (NopBroker) Publish(context.Context, string, interface{}) error { return nil }

func (NopBroker) Close() error { return nil }
