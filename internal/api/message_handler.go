package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/database"
	"github.com/medbook/medbook/internal/domain"
)

// MessageHandler serves the message history of an appointment room.
type MessageHandler struct {
	messages     *database.MessageRepository
	appointments *database.AppointmentRepository
	logger       *slog.Logger
}

func NewMessageHandler(messages *database.MessageRepository, appointments *database.AppointmentRepository, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messages:     messages,
		appointments: appointments,
		logger:       logger,
	}
}

// List handles GET /appointments/{id}/messages
// Supports cursor pagination via ?before=<RFC3339 timestamp>&limit=<n>.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	apptID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment ID")
		return
	}

	appt, err := h.appointments.GetByID(r.Context(), apptID)
	if err != nil {
		if errors.Is(err, domain.ErrAppointmentNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("get appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if !appt.IsParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a participant of this appointment")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	var before *time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &t
	}

	msgs, err := h.messages.ListByAppointment(r.Context(), apptID, before, limit)
	if err != nil {
		h.logger.Error("list messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}
