// Package worker consumes the audit events the web front publishes and writes
// them to the operator log.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

type EventWorker struct {
	sub        messaging.Subscriber
	topic      string
	logger     *logger.Logger
	metrics    *metrics.Metrics
	retryDelay time.Duration
	now        func() time.Time
}

func NewEventWorker(sub messaging.Subscriber, topic string, l *logger.Logger, m *metrics.Metrics) *EventWorker {
	if m == nil {
		m = metrics.NewNop()
	}
	if l == nil {
		l = logger.Nop()
	}
	return &EventWorker{
		sub:        sub,
		topic:      topic,
		logger:     l,
		metrics:    m,
		retryDelay: 5 * time.Second,
		now:        time.Now,
	}
}

// Start subscribes until ctx is cancelled. A dropped subscription is retried
// after retryDelay.
func (w *EventWorker) Start(ctx context.Context) {
	w.logger.Info("worker started", "topic", w.topic)

	for {
		err := w.sub.Subscribe(ctx, w.topic, w.handle)
		if ctx.Err() != nil {
			w.logger.Info("worker shutting down")
			return
		}
		if err != nil {
			w.logger.Error(err, "subscription failed", "topic", w.topic)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *EventWorker) handle(ctx context.Context, payload []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		w.logger.Error(err, "malformed event", "size", len(payload))
		return fmt.Errorf("failed to decode event: %w", err)
	}

	if !msg.OccurredAt.IsZero() {
		w.metrics.EventLag.Observe(w.now().Sub(msg.OccurredAt).Seconds())
	}
	w.metrics.EventsConsumed.WithLabelValues(msg.Type, "ok").Inc()
	w.logger.Zerolog().Info().
		Str("event_id", msg.ID).
		Str("type", msg.Type).
		Time("occurred_at", msg.OccurredAt).
		Interface("payload", msg.Payload).
		Msg("audit event")
	return nil
}
