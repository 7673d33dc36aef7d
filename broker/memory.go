package broker

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned for operations on a closed broker.
var ErrClosed = errors.New("broker is closed")

// Memory is an in-process Broker for single-node deployments and tests.
// Publish dispatches synchronously to a snapshot of the topic's handlers,
// taken under the lock but invoked outside it.
type Memory struct {
	mu     sync.RWMutex
	topics map[string]map[string]Handler
	closed bool
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]map[string]Handler)}
}

// Publish delivers msg to every handler currently bound to the topic.
func (m *Memory) Publish(topic string, msg Message) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(m.topics[topic]))
	for _, h := range m.topics[topic] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	msg.Topic = topic
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// Subscribe binds a handler to the topic.
func (m *Memory) Subscribe(topic string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[string]Handler)
	}
	m.topics[topic][id] = handler

	return &memorySubscription{broker: m, topic: topic, id: id}, nil
}

// Close drops all subscriptions. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.topics = make(map[string]map[string]Handler)
	return nil
}

// SubscriberCount reports how many handlers are bound to a topic.
func (m *Memory) SubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}

type memorySubscription struct {
	broker *Memory
	topic  string
	id     string
}

func (s *memorySubscription) Topic() string { return s.topic }

func (s *memorySubscription) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if handlers, ok := s.broker.topics[s.topic]; ok {
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.broker.topics, s.topic)
		}
	}
	return nil
}
