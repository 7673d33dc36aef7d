package common

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ruvnet/alienator-sub000/broker"
	"github.com/ruvnet/alienator-sub000/broker/natsbroker"
	"github.com/ruvnet/alienator-sub000/broker/redisbroker"
)

// NewBroker builds the message transport named by the config.
func NewBroker(ctx context.Context, cfg BrokerConfig) (broker.Broker, error) {
	switch cfg.Kind {
	case "memory":
		return broker.NewMemory(), nil
	case "nats":
		b, err := natsbroker.Connect(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return b, nil
	case "redis":
		b, err := redisbroker.Connect(ctx, &redis.Options{Addr: cfg.URL})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
