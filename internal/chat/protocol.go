package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for client -> server
const (
	EventTypeJoinRoom    = "joinRoom"
	EventTypeSendMessage = "sendMessage"
)

// Event types for server -> client
const (
	EventTypeJoinError      = "joinError"
	EventTypeSendError      = "sendError"
	EventTypeReceiveMessage = "receiveMessage"
)

// Error messages delivered back to the requesting connection. Join failures
// use one undifferentiated message so an unauthorized caller cannot probe
// whether an appointment exists.
const (
	ErrMsgUnauthorizedOrNotFound = "unauthorized or not found"
	ErrMsgFailedToJoin           = "failed to join"
	ErrMsgInvalidRequest         = "invalid request"
	ErrMsgFailedToSend           = "failed to send"
)

// Message is the base WebSocket message envelope
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the current timestamp
func NewMessage(eventType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      eventType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// ============================================================================
// Client -> Server Payloads
// ============================================================================

// JoinRoomPayload for joining an appointment's chat room
type JoinRoomPayload struct {
	AppointmentID string `json:"appointmentId"`
}

// SendMessagePayload for sending a chat message
type SendMessagePayload struct {
	AppointmentID string `json:"appointmentId"`
	Message       string `json:"message"`
}

// ============================================================================
// Server -> Client Payloads
// ============================================================================

// ErrorPayload carries a join or send failure back to the requester only
type ErrorPayload struct {
	Message string `json:"message"`
}

// ReceiveMessagePayload broadcasts a persisted message to all room members
type ReceiveMessagePayload struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Sender        uuid.UUID `json:"sender"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}
