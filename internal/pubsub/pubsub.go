// Package pubsub provides an interface-driven pub/sub system for realtime messaging.
// A single instance uses the in-memory implementation; the Redis backend lets
// multiple instances share room fan-out.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing messages.
// Handlers are invoked synchronously, and publishes to one topic are
// serialized across publishers: every subscriber observes a topic's messages
// in a single total order. Keep handlers fast, they run under the topic's
// dispatch lock.
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	// Returns error if the message could not be published.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	// The handler is called for each message published to the topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// Appointment returns the topic for one appointment's chat room
func (t TopicBuilder) Appointment(apptID string) string {
	return "appointment:" + apptID
}

// User returns the topic for user-specific events
func (t TopicBuilder) User(userID string) string {
	return "user:" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
