// Package broadcast implements the channel/subscription manager at the
// heart of the fan-out core.
//
// A Manager owns the channel and subscription maps and the process-wide
// broadcast metrics, and builds at-least-once fan-out on top of an
// external message broker: each channel maps to the broker topic
// "channel.<id>", bound by a single reference-counted broker subscription
// shared across the channel's local subscribers. Lifecycle changes are
// announced on an advisory event bus; those notifications are best-effort
// and never roll back state.
//
// Channel state machine: active → deleted (terminal). Subscription state
// machine: active → inactive (terminal, via Unsubscribe or channel
// deletion cascade).
package broadcast
