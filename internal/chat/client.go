package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Client represents one live connection. The identity is fixed when the
// connection gate admits the socket and never changes afterwards.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	name   string
	rooms  map[uuid.UUID]bool // appointment IDs this connection has joined
	mu     sync.RWMutex
	logger *slog.Logger

	// sendMu guards send against close: the hub closes the channel during
	// unregister while broadcasts may still hold a stale member snapshot
	sendMu     sync.Mutex
	sendClosed bool
}

// NewClient creates a client for an already-authenticated connection
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, name string, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		name:   name,
		rooms:  make(map[uuid.UUID]bool),
		logger: logger,
	}
}

// UserID returns the identity attached at connection time
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Name returns the display name attached at connection time
func (c *Client) Name() string {
	return c.name
}

// JoinRoom marks the connection as a member of a room
func (c *Client) JoinRoom(roomID uuid.UUID) {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()
}

// LeaveRoom removes the room from the connection's membership set
func (c *Client) LeaveRoom(roomID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// IsInRoom checks if the connection has joined a room
func (c *Client) IsInRoom(roomID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// Rooms returns all rooms the connection has joined
func (c *Client) Rooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.userID)
				}
				return
			}

			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				c.logger.Debug("dropping unparseable frame", "user_id", c.userID)
				continue
			}

			c.hub.HandleMessage(c, &msg)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a message for the write pump. After the hub has closed the
// connection the message is discarded, so a broadcast racing a disconnect
// never writes to a closed channel.
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return nil
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, drop message
		c.logger.Warn("client send buffer full, dropping message", "user_id", c.userID)
	}
	return nil
}

// closeSend shuts the outbound queue exactly once. Only the hub calls this,
// during unregister.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// sendError delivers a join or send failure to this connection only
func (c *Client) sendError(eventType, message string) {
	msg, _ := NewMessage(eventType, ErrorPayload{Message: message})
	_ = c.Send(msg)
}
