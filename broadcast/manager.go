package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruvnet/alienator-sub000/broker"
	"github.com/ruvnet/alienator-sub000/eventbus"
)

const eventSource = "broadcast"

// DeliveryFunc forwards a broker message to one subscribed user. The
// default implementation only logs; real deployments plug in their push
// transport here.
type DeliveryFunc func(userID string, msg broker.Message)

// ManagerConfig tunes the channel manager.
type ManagerConfig struct {
	// DefaultTTL is assigned to channels created without one.
	DefaultTTL time.Duration
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{DefaultTTL: 24 * time.Hour}
}

// Manager owns broadcast channels and subscriptions. It binds one
// reference-counted broker subscription per channel topic, shared across
// that channel's local subscribers and dropped when the last one leaves.
//
// All broker I/O happens outside the manager lock; the lock protects only
// the channel/subscription maps and the metrics counters.
type Manager struct {
	config  ManagerConfig
	broker  broker.Broker
	events  eventbus.Bus
	deliver DeliveryFunc
	logger  *slog.Logger

	mu            sync.RWMutex
	channels      map[string]*Channel
	subscriptions map[string]*Subscription
	bindings      map[string]*topicBinding
	metrics       Metrics
}

// topicBinding is the shared broker subscription for one channel topic.
type topicBinding struct {
	sub  broker.Subscription
	refs int
}

// NewManager creates a channel manager on top of the given broker and
// event bus. A nil deliver falls back to logging each delivery.
func NewManager(config ManagerConfig, b broker.Broker, events eventbus.Bus, deliver DeliveryFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		config:        config,
		broker:        b,
		events:        events,
		deliver:       deliver,
		logger:        logger,
		channels:      make(map[string]*Channel),
		subscriptions: make(map[string]*Subscription),
		bindings:      make(map[string]*topicBinding),
	}
	if m.deliver == nil {
		m.deliver = func(userID string, msg broker.Message) {
			logger.Debug("message delivered", "user", userID, "topic", msg.Topic, "message", msg.ID)
		}
	}
	return m
}

// CreateChannel inserts a new active channel. Fails with
// ErrChannelExists if the ID is already present.
func (m *Manager) CreateChannel(id, name, description string) (Channel, error) {
	now := time.Now()
	ch := &Channel{
		ID:          id,
		Name:        name,
		Description: description,
		Status:      ChannelActive,
		TTL:         m.config.DefaultTTL,
		Config:      make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	if _, exists := m.channels[id]; exists {
		m.mu.Unlock()
		return Channel{}, fmt.Errorf("channel %q: %w", id, ErrChannelExists)
	}
	m.channels[id] = ch
	m.metrics.TotalChannels++
	m.metrics.LastActivity = now
	out := ch.clone()
	m.mu.Unlock()

	m.emit(eventbus.EventChannelCreated, map[string]any{
		"channel_id": id,
		"name":       name,
	})
	m.logger.Info("channel created", "channel", id, "name", name)
	return out, nil
}

// Subscribe binds a user to an existing channel. The first local
// subscriber of a channel also binds the shared broker-level subscription
// for its topic.
func (m *Manager) Subscribe(userID, channelID string) (Subscription, error) {
	topic := broker.ChannelTopic(channelID)

	m.mu.Lock()
	if _, exists := m.channels[channelID]; !exists {
		m.mu.Unlock()
		return Subscription{}, fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
	}
	binding := m.bindings[channelID]
	if binding != nil {
		binding.refs++
		sub := m.insertSubscriptionLocked(userID, channelID)
		m.mu.Unlock()
		m.emitSubscribed(sub)
		return sub, nil
	}
	m.mu.Unlock()

	// First subscriber for this channel: bind the broker topic outside
	// the lock, then re-validate.
	brokerSub, err := m.broker.Subscribe(topic, m.topicHandler(channelID))
	if err != nil {
		return Subscription{}, fmt.Errorf("bind topic %q: %w", topic, err)
	}

	m.mu.Lock()
	if _, exists := m.channels[channelID]; !exists {
		// Channel deleted while we were binding.
		m.mu.Unlock()
		if uerr := brokerSub.Unsubscribe(); uerr != nil {
			m.logger.Warn("release of orphaned topic binding failed", "topic", topic, "err", uerr)
		}
		return Subscription{}, fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
	}
	if existing := m.bindings[channelID]; existing != nil {
		// A concurrent Subscribe won the race to bind; keep its binding.
		existing.refs++
		sub := m.insertSubscriptionLocked(userID, channelID)
		m.mu.Unlock()
		if uerr := brokerSub.Unsubscribe(); uerr != nil {
			m.logger.Warn("release of duplicate topic binding failed", "topic", topic, "err", uerr)
		}
		m.emitSubscribed(sub)
		return sub, nil
	}
	m.bindings[channelID] = &topicBinding{sub: brokerSub, refs: 1}
	sub := m.insertSubscriptionLocked(userID, channelID)
	m.mu.Unlock()

	m.emitSubscribed(sub)
	return sub, nil
}

// insertSubscriptionLocked creates the subscription record and updates
// the channel counter and metrics. Caller holds m.mu.
func (m *Manager) insertSubscriptionLocked(userID, channelID string) Subscription {
	now := time.Now()
	sub := &Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChannelID: channelID,
		Status:    SubscriptionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.subscriptions[sub.ID] = sub

	ch := m.channels[channelID]
	ch.SubscriberCount++
	ch.UpdatedAt = now
	m.metrics.TotalSubscriptions++
	m.metrics.LastActivity = now
	return *sub
}

func (m *Manager) emitSubscribed(sub Subscription) {
	m.emit(eventbus.EventChannelSubscribed, map[string]any{
		"channel_id":      sub.ChannelID,
		"subscription_id": sub.ID,
		"user_id":         sub.UserID,
	})
	m.logger.Info("user subscribed", "channel", sub.ChannelID, "subscription", sub.ID, "user", sub.UserID)
}

// topicHandler builds the shared broker handler for one channel topic: it
// forwards each inbound message to every locally subscribed user and
// emits a message.received event per delivery.
func (m *Manager) topicHandler(channelID string) broker.Handler {
	return func(msg broker.Message) {
		m.mu.RLock()
		users := make([]string, 0, 4)
		for _, sub := range m.subscriptions {
			if sub.ChannelID == channelID && sub.Status == SubscriptionActive {
				users = append(users, sub.UserID)
			}
		}
		m.mu.RUnlock()

		for _, userID := range users {
			m.deliver(userID, msg)
			m.emit(eventbus.EventMessageReceived, map[string]any{
				"channel_id": channelID,
				"user_id":    userID,
				"message_id": msg.ID,
			})
		}
	}
}

// Unsubscribe ends a subscription. Fails with ErrSubscriptionNotFound if
// the ID is unknown (including already-unsubscribed IDs).
func (m *Manager) Unsubscribe(subscriptionID string) error {
	m.mu.Lock()
	sub, exists := m.subscriptions[subscriptionID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("subscription %q: %w", subscriptionID, ErrSubscriptionNotFound)
	}
	sub.Status = SubscriptionInactive
	sub.UpdatedAt = time.Now()
	delete(m.subscriptions, subscriptionID)

	if ch, ok := m.channels[sub.ChannelID]; ok && ch.SubscriberCount > 0 {
		ch.SubscriberCount--
		ch.UpdatedAt = time.Now()
	}
	if m.metrics.TotalSubscriptions > 0 {
		m.metrics.TotalSubscriptions--
	}
	m.metrics.LastActivity = time.Now()

	var release broker.Subscription
	if binding, ok := m.bindings[sub.ChannelID]; ok {
		binding.refs--
		if binding.refs <= 0 {
			release = binding.sub
			delete(m.bindings, sub.ChannelID)
		}
	}
	channelID, userID := sub.ChannelID, sub.UserID
	m.mu.Unlock()

	if release != nil {
		if err := release.Unsubscribe(); err != nil {
			m.logger.Warn("release of topic binding failed", "channel", channelID, "err", err)
		}
	}

	m.emit(eventbus.EventChannelUnsubscribed, map[string]any{
		"channel_id":      channelID,
		"subscription_id": subscriptionID,
		"user_id":         userID,
	})
	m.logger.Info("user unsubscribed", "channel", channelID, "subscription", subscriptionID)
	return nil
}

// Broadcast publishes a message to every subscriber of the channel. The
// broker publish happens before any state mutation: a publish failure
// leaves metrics and the channel untouched and is returned to the caller.
func (m *Manager) Broadcast(channelID string, msg broker.Message) error {
	m.mu.RLock()
	ch, exists := m.channels[channelID]
	if !exists {
		m.mu.RUnlock()
		return fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
	}
	if ch.Status != ChannelActive {
		m.mu.RUnlock()
		return fmt.Errorf("channel %q: %w", channelID, ErrChannelNotActive)
	}
	m.mu.RUnlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Topic == "" {
		msg.Topic = channelID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if err := m.broker.Publish(broker.ChannelTopic(channelID), msg); err != nil {
		return fmt.Errorf("publish to channel %q: %w", channelID, err)
	}

	now := time.Now()
	m.mu.Lock()
	delivered := 0
	if ch, ok := m.channels[channelID]; ok {
		delivered = ch.SubscriberCount
		ch.UpdatedAt = now
	}
	m.metrics.MessagesBroadcast++
	m.metrics.MessagesDelivered += int64(delivered)
	m.metrics.LastActivity = now
	m.mu.Unlock()

	m.emit(eventbus.EventMessageBroadcast, map[string]any{
		"channel_id":  channelID,
		"message_id":  msg.ID,
		"subscribers": delivered,
	})
	return nil
}

// DeleteChannel removes a channel and cascades to every subscription
// referencing it. Fails with ErrChannelNotFound if absent.
func (m *Manager) DeleteChannel(channelID string) error {
	m.mu.Lock()
	ch, exists := m.channels[channelID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
	}
	ch.Status = ChannelDeleted
	ch.UpdatedAt = time.Now()
	delete(m.channels, channelID)

	removed := 0
	for id, sub := range m.subscriptions {
		if sub.ChannelID == channelID {
			sub.Status = SubscriptionInactive
			delete(m.subscriptions, id)
			removed++
		}
	}

	if m.metrics.TotalChannels > 0 {
		m.metrics.TotalChannels--
	}
	m.metrics.TotalSubscriptions -= int64(removed)
	if m.metrics.TotalSubscriptions < 0 {
		m.metrics.TotalSubscriptions = 0
	}
	m.metrics.LastActivity = time.Now()

	var release broker.Subscription
	if binding, ok := m.bindings[channelID]; ok {
		release = binding.sub
		delete(m.bindings, channelID)
	}
	m.mu.Unlock()

	if release != nil {
		if err := release.Unsubscribe(); err != nil {
			m.logger.Warn("release of topic binding failed", "channel", channelID, "err", err)
		}
	}

	m.emit(eventbus.EventChannelDeleted, map[string]any{
		"channel_id":            channelID,
		"subscriptions_removed": removed,
	})
	m.logger.Info("channel deleted", "channel", channelID, "subscriptions_removed", removed)
	return nil
}

// GetChannel returns a copy of one channel.
func (m *Manager) GetChannel(channelID string) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, exists := m.channels[channelID]
	if !exists {
		return Channel{}, fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
	}
	return ch.clone(), nil
}

// ListChannels returns copies of all live channels.
func (m *Manager) ListChannels() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch.clone())
	}
	return out
}

// GetSubscription returns a copy of one live subscription.
func (m *Manager) GetSubscription(subscriptionID string) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[subscriptionID]
	if !exists {
		return Subscription{}, fmt.Errorf("subscription %q: %w", subscriptionID, ErrSubscriptionNotFound)
	}
	return *sub, nil
}

// GetMetrics returns a value copy of the counters.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// emit sends an advisory event. Emission failures are logged and
// swallowed; events are not part of the transactional contract.
func (m *Manager) emit(eventType string, data map[string]any) {
	if m.events == nil {
		return
	}
	err := m.events.Emit(eventbus.Event{
		Type:   eventType,
		Source: eventSource,
		Data:   data,
	})
	if err != nil {
		m.logger.Warn("event emission failed", "type", eventType, "err", err)
	}
}
