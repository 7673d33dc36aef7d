package broadcast

import (
	"errors"
	"time"
)

// ChannelStatus is the lifecycle state of a channel.
type ChannelStatus string

const (
	ChannelActive  ChannelStatus = "active"
	ChannelDeleted ChannelStatus = "deleted"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Sentinel errors for caller mistakes; never retried internally.
var (
	ErrChannelExists        = errors.New("channel already exists")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrChannelNotActive     = errors.New("channel is not active")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Channel is a named broadcast destination. The ID is caller-supplied and
// unique; a channel is active from creation until DeleteChannel flips it
// to deleted, its only other state.
type Channel struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Status          ChannelStatus     `json:"status"`
	SubscriberCount int               `json:"subscriber_count"`
	TTL             time.Duration     `json:"ttl"`
	Config          map[string]string `json:"config,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (c Channel) clone() Channel {
	out := c
	if c.Config != nil {
		out.Config = make(map[string]string, len(c.Config))
		for k, v := range c.Config {
			out.Config[k] = v
		}
	}
	return out
}

// Subscription binds one user to one channel. Its lifecycle is
// independent of the channel's: Unsubscribe ends it, as does deletion of
// the channel it references.
type Subscription struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	ChannelID string             `json:"channel_id"`
	Status    SubscriptionStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Metrics holds process-wide broadcast counters. MessagesDelivered is an
// estimate: each broadcast adds the channel's subscriber count at publish
// time, since no per-subscriber acknowledgment channel exists.
type Metrics struct {
	TotalChannels      int64     `json:"total_channels"`
	TotalSubscriptions int64     `json:"total_subscriptions"`
	MessagesBroadcast  int64     `json:"messages_broadcast"`
	MessagesDelivered  int64     `json:"messages_delivered"`
	LastActivity       time.Time `json:"last_activity"`
}
