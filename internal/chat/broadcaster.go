package chat

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/medbook/medbook/internal/pubsub"
)

// Broadcaster publishes an event to every connection joined to an
// appointment's room. It decouples the send pipeline and the REST layer from
// the WebSocket transport.
type Broadcaster interface {
	Publish(ctx context.Context, apptID uuid.UUID, eventType string, payload interface{}) error
}

// PubSubBroadcaster implements Broadcaster on top of the PubSub system, so
// fan-out works across instances when the Redis backend is configured.
type PubSubBroadcaster struct {
	ps pubsub.PubSub
}

// NewPubSubBroadcaster creates a broadcaster backed by the given PubSub
func NewPubSubBroadcaster(ps pubsub.PubSub) *PubSubBroadcaster {
	return &PubSubBroadcaster{ps: ps}
}

func (b *PubSubBroadcaster) Publish(ctx context.Context, apptID uuid.UUID, eventType string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	topic := pubsub.Topics.Appointment(apptID.String())
	return b.ps.Publish(ctx, topic, &pubsub.Message{
		Topic:   topic,
		Type:    eventType,
		Payload: payloadBytes,
	})
}
