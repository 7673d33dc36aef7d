package broker

import (
	"time"
)

// Message is the unit of delivery between publishers and subscribers.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Handler consumes messages delivered for a subscription. Handlers are
// invoked once per delivered message and must not block.
type Handler func(msg Message)

// Subscription is a live binding of a handler to a topic. Unsubscribe
// releases it; releasing twice is a no-op.
type Subscription interface {
	// Topic returns the topic the subscription is bound to.
	Topic() string
	// Unsubscribe detaches the handler from the topic.
	Unsubscribe() error
}

// Broker is the message-transport contract the broadcast core is built
// on. Implementations: the in-process Memory broker, and the NATS and
// Redis adapters in the subpackages.
type Broker interface {
	// Publish delivers the message to every current subscriber of its
	// topic. At-least-once: a subscriber registered at publish time
	// receives the message or the publish errors.
	Publish(topic string, msg Message) error
	// Subscribe binds a handler to a topic.
	Subscribe(topic string, handler Handler) (Subscription, error)
	// Close releases transport resources.
	Close() error
}

// ChannelTopic derives the broker topic for a broadcast channel.
func ChannelTopic(channelID string) string {
	return "channel." + channelID
}
