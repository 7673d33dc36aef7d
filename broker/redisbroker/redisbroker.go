// Package redisbroker adapts the broker contract onto Redis
// PUBLISH/SUBSCRIBE for multi-node deployments.
package redisbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ruvnet/alienator-sub000/broker"
)

// Broker publishes and subscribes over a Redis client. Each Subscribe
// opens its own PubSub connection with a receive goroutine; Unsubscribe
// closes it.
type Broker struct {
	client *redis.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, opts *redis.Options) (*Broker, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client), nil
}

// New wraps an existing Redis client. Close closes the client.
func New(client *redis.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{client: client, ctx: ctx, cancel: cancel}
}

// Publish sends msg to the Redis channel named by topic.
func (b *Broker) Publish(topic string, msg broker.Message) error {
	msg.Topic = topic
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.client.Publish(b.ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe binds a handler to the Redis channel named by topic.
func (b *Broker) Subscribe(topic string, handler broker.Handler) (broker.Subscription, error) {
	pubsub := b.client.Subscribe(b.ctx, topic)

	// Force the subscription onto the wire before returning so a
	// following Publish can reach this subscriber.
	if _, err := pubsub.Receive(b.ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		for m := range pubsub.Channel() {
			var msg broker.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				msg = broker.Message{Topic: topic, Payload: []byte(m.Payload)}
			}
			handler(msg)
		}
	}()

	return &subscription{topic: topic, pubsub: pubsub}, nil
}

// Close cancels all subscriptions and closes the underlying client.
func (b *Broker) Close() error {
	b.cancel()
	return b.client.Close()
}

type subscription struct {
	topic  string
	pubsub *redis.PubSub

	once sync.Once
	err  error
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
	})
	return s.err
}
