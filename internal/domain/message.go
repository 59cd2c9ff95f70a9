package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one line of appointment chat. Append-only: once written it is
// never updated or deleted by this service.
type ChatMessage struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`

	// Populated on fetch
	Sender *PublicUser `json:"sender,omitempty"`
}
