package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/medbook/medbook/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins in development (tighten in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier validates a bearer credential and returns the caller's claims
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Handler is the connection gate: it authenticates the upgrade request before
// the socket reaches the hub. Rejected connections never register pumps, so
// no event handler runs for them.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler
func NewHandler(hub *Hub, verifier TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeHTTP authenticates the handshake, upgrades, and runs the connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.verifier.ValidateToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Name, h.logger)
	h.hub.Register(client)

	// Use a dedicated context for the WebSocket connection lifecycle
	// The request context gets cancelled when ServeHTTP returns after upgrade
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // stops the write pump once the read pump returns

	go client.WritePump(ctx)
	client.ReadPump(ctx) // Block here until client disconnects
}
