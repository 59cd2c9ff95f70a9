package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/medbook/medbook/internal/domain"
	"github.com/medbook/medbook/internal/pubsub"
)

// AppointmentDirectory resolves an appointment to its two authorized
// participant identities.
type AppointmentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
}

// MessageStore is the append-only persistence for chat messages. Create
// assigns the record's identifier and creation timestamp.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
}

// Hub owns the room-to-connections mapping and runs the join and send
// pipelines. It is an explicitly constructed service object, not process
// state: tests build one per scenario.
type Hub struct {
	// Room subscriptions: appointment_id -> set of clients
	rooms map[uuid.UUID]map[*Client]bool

	// One pubsub subscription per room with local members
	roomSubs map[uuid.UUID]pubsub.Subscription

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Mutex for thread-safe access
	mu sync.RWMutex

	// Dependencies
	appointments AppointmentDirectory
	messages     MessageStore
	ps           pubsub.PubSub
	broadcaster  Broadcaster
	logger       *slog.Logger
}

// NewHub creates a new Hub
func NewHub(appointments AppointmentDirectory, messages MessageStore, ps pubsub.PubSub, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:        make(map[uuid.UUID]map[*Client]bool),
		roomSubs:     make(map[uuid.UUID]pubsub.Subscription),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		appointments: appointments,
		messages:     messages,
		ps:           ps,
		broadcaster:  NewPubSubBroadcaster(ps),
		logger:       logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) handleRegister(client *Client) {
	h.logger.Debug("client connected", "user_id", client.UserID())
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Membership is released implicitly; nothing is announced to the room
	for _, roomID := range client.Rooms() {
		h.removeFromRoomLocked(roomID, client)
	}

	client.closeSend()
	h.logger.Debug("client disconnected", "user_id", client.UserID())
}

// removeFromRoomLocked drops a client from a room and tears down the room's
// pubsub subscription once the last local member is gone. Caller holds h.mu.
func (h *Hub) removeFromRoomLocked(roomID uuid.UUID, client *Client) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) > 0 {
		return
	}
	delete(h.rooms, roomID)
	if sub, ok := h.roomSubs[roomID]; ok {
		_ = sub.Unsubscribe()
		delete(h.roomSubs, roomID)
	}
}

// HandleMessage processes incoming WebSocket events
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case EventTypeJoinRoom:
		h.handleJoinRoom(client, msg.Payload)
	case EventTypeSendMessage:
		h.handleSendMessage(client, msg.Payload)
	default:
		h.logger.Debug("unknown event type", "type", msg.Type, "user_id", client.UserID())
	}
}

// handleJoinRoom admits the connection into the appointment's room if the
// connection's identity is the patient or the doctor. Missing appointments
// and unauthorized callers get the same answer so existence cannot be probed.
func (h *Hub) handleJoinRoom(client *Client, payload json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError(EventTypeJoinError, ErrMsgUnauthorizedOrNotFound)
		return
	}

	apptID, err := uuid.Parse(p.AppointmentID)
	if err != nil {
		client.sendError(EventTypeJoinError, ErrMsgUnauthorizedOrNotFound)
		return
	}

	// Rejoining is a no-op
	if client.IsInRoom(apptID) {
		return
	}

	ctx := context.Background()
	appt, err := h.appointments.GetByID(ctx, apptID)
	if err != nil || !appt.IsParticipant(client.UserID()) {
		client.sendError(EventTypeJoinError, ErrMsgUnauthorizedOrNotFound)
		return
	}

	h.mu.Lock()

	// The room's subscription must exist before anyone is a member: a room
	// with members but no subscription would swallow every send
	if _, ok := h.roomSubs[apptID]; !ok {
		topic := pubsub.Topics.Appointment(apptID.String())
		roomID := apptID
		sub, err := h.ps.Subscribe(ctx, topic, func(ctx context.Context, msg *pubsub.Message) {
			h.deliverToRoom(roomID, msg)
		})
		if err != nil {
			h.mu.Unlock()
			h.logger.Error("failed to subscribe to room topic", "error", err, "room_id", apptID)
			client.sendError(EventTypeJoinError, ErrMsgFailedToJoin)
			return
		}
		h.roomSubs[apptID] = sub
	}

	if h.rooms[apptID] == nil {
		h.rooms[apptID] = make(map[*Client]bool)
	}
	h.rooms[apptID][client] = true
	h.mu.Unlock()

	client.JoinRoom(apptID)

	h.logger.Debug("client joined room", "user_id", client.UserID(), "room_id", apptID)
}

// handleSendMessage validates, persists, and broadcasts one chat message.
// Failures go back to the sender only; nothing is persisted or broadcast.
func (h *Hub) handleSendMessage(client *Client, payload json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError(EventTypeSendError, ErrMsgInvalidRequest)
		return
	}

	if p.AppointmentID == "" || p.Message == "" {
		client.sendError(EventTypeSendError, ErrMsgInvalidRequest)
		return
	}

	apptID, err := uuid.Parse(p.AppointmentID)
	if err != nil {
		client.sendError(EventTypeSendError, ErrMsgInvalidRequest)
		return
	}

	// The sender must already be in the room; joining did the authorization
	if !client.IsInRoom(apptID) {
		client.sendError(EventTypeSendError, ErrMsgInvalidRequest)
		return
	}

	msg := &domain.ChatMessage{
		AppointmentID: apptID,
		SenderID:      client.UserID(),
		Body:          strings.TrimSpace(p.Message),
	}

	// Background context: a disconnect mid-send must not suppress the
	// broadcast for members who remain connected
	ctx := context.Background()
	if err := h.messages.Create(ctx, msg); err != nil {
		h.logger.Error("failed to save message", "error", err, "room_id", apptID)
		client.sendError(EventTypeSendError, ErrMsgFailedToSend)
		return
	}

	broadcast := ReceiveMessagePayload{
		ID:            msg.ID,
		AppointmentID: msg.AppointmentID,
		Sender:        msg.SenderID,
		Message:       msg.Body,
		CreatedAt:     msg.CreatedAt,
	}
	if err := h.broadcaster.Publish(ctx, apptID, EventTypeReceiveMessage, broadcast); err != nil {
		h.logger.Error("failed to broadcast message", "error", err, "room_id", apptID)
	}
}

// deliverToRoom fans one event out to every local member of a room. One call
// covers the whole room so members observe the same content and order.
func (h *Hub) deliverToRoom(roomID uuid.UUID, msg *pubsub.Message) {
	h.mu.RLock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy clients to avoid holding lock during send
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	out, err := NewMessage(msg.Type, json.RawMessage(msg.Payload))
	if err != nil {
		h.logger.Error("failed to create broadcast envelope", "error", err)
		return
	}

	for _, client := range clients {
		_ = client.Send(out)
	}
}

// RoomSize returns the number of local connections in a room (useful for testing)
func (h *Hub) RoomSize(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
