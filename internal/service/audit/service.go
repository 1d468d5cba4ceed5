package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

// Event types
const (
	EventBookingSubmitted = "booking.submitted"
	EventBookingCancelled = "booking.cancelled"
	EventTimesUpdated     = "times.updated"
	EventAdminLogout      = "admin.logout"
)

// Recorder is what the controllers depend on.
type Recorder interface {
	Record(ctx context.Context, eventType string, payload interface{})
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, string, interface{}) {}

type Service struct {
	broker  messaging.Broker
	topic   string
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time

	// mu guards closed and every wg.Add, so no Add races with Close's Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewService(broker messaging.Broker, topic string, m *metrics.Metrics, l *logger.Logger) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Service{
		broker:  broker,
		topic:   topic,
		timeout: 5 * time.Second,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

// Record publishes in the background. Failures are logged and counted, never
// returned; the caller's cancellation does not abort the publish. Events
// recorded after Close are dropped.
func (s *Service) Record(ctx context.Context, eventType string, payload interface{}) {
	msg := s.envelope(eventType, payload)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.metrics.EventsPublished.WithLabelValues(msg.Type, "dropped").Inc()
		s.logger.Warn("audit event recorded after close", "type", msg.Type, "id", msg.ID)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_ = s.publish(ctx, msg)
	}()
}

// RecordSync publishes and returns the broker error.
func (s *Service) RecordSync(ctx context.Context, eventType string, payload interface{}) error {
	return s.publish(ctx, s.envelope(eventType, payload))
}

// Close waits for in-flight publishes and closes the broker. Later calls are
// no-ops.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return s.broker.Close()
}

func (s *Service) envelope(eventType string, payload interface{}) messaging.Message {
	return messaging.Message{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	}
}

func (s *Service) publish(ctx context.Context, msg messaging.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.broker.Publish(ctx, s.topic, msg); err != nil {
		s.metrics.EventsPublished.WithLabelValues(msg.Type, "error").Inc()
		s.logger.Error(err, "failed to publish audit event", "type", msg.Type, "id", msg.ID)
		return err
	}
	s.metrics.EventsPublished.WithLabelValues(msg.Type, "ok").Inc()
	return nil
}

var _ Recorder = (*Service)(nil)
var _ Recorder = Nop{}
