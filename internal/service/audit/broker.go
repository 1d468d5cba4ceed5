package audit

import (
	"context"
	"fmt"

	"github.com/jwalitptl/salon-booking/config"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
	"github.com/jwalitptl/salon-booking/pkg/messaging/kafka"
	"github.com/jwalitptl/salon-booking/pkg/messaging/redis"
)

// NewBroker opens the broker selected by cfg.Driver.
func NewBroker(ctx context.Context, cfg config.EventsConfig) (messaging.Broker, error) {
	switch cfg.Driver {
	case "", "none":
		return messaging.NopBroker{}, nil
	case "redis":
		return redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
	case "kafka":
		return kafka.NewKafkaBroker(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			GroupID:      cfg.Kafka.GroupID,
		})
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
