// Package natsbroker adapts the broker contract onto NATS core
// publish/subscribe for multi-node deployments.
package natsbroker

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ruvnet/alienator-sub000/broker"
)

// Broker publishes and subscribes over a NATS connection. Messages are
// carried as JSON-encoded broker.Message payloads.
type Broker struct {
	conn *nats.Conn
}

// Connect dials a NATS server and wraps the connection.
func Connect(url string, opts ...nats.Option) (*Broker, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Broker{conn: conn}, nil
}

// New wraps an existing NATS connection. The caller keeps ownership of
// the connection's lifecycle only if it also created it elsewhere;
// Close drains and closes it.
func New(conn *nats.Conn) *Broker {
	return &Broker{conn: conn}
}

// Publish sends msg to the NATS subject named by topic.
func (b *Broker) Publish(topic string, msg broker.Message) error {
	msg.Topic = topic
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe binds a handler to the NATS subject named by topic.
func (b *Broker) Subscribe(topic string, handler broker.Handler) (broker.Subscription, error) {
	sub, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		var msg broker.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			// Foreign payload on our subject; deliver it raw.
			msg = broker.Message{Topic: topic, Payload: m.Data}
		}
		handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return &subscription{topic: topic, sub: sub}, nil
}

// Close drains in-flight messages and closes the connection.
func (b *Broker) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

type subscription struct {
	topic string
	sub   *nats.Subscription
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
