package api

import (
	"encoding/json"
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

// AppointmentHandler handles appointment booking endpoints
type AppointmentHandler struct {
	appointments *database.AppointmentRepository
	doctors      *database.DoctorRepository
	logger       *slog.Logger
}

func NewAppointmentHandler(appointments *database.AppointmentRepository, doctors *database.DoctorRepository, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		appointments: appointments,
		doctors:      doctors,
		logger:       logger,
	}
}

// Book handles POST /appointments
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input struct {
		DoctorID    string    `json:"doctor_id"`
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doctorID, err := uuid.Parse(input.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctor ID")
		return
	}
	if input.ScheduledAt.IsZero() || input.ScheduledAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "scheduled_at must be in the future")
		return
	}

	profile, err := h.doctors.GetByUserID(r.Context(), doctorID)
	if err != nil {
		if errors.Is(err, domain.ErrDoctorNotFound) {
			writeError(w, http.StatusNotFound, "doctor not found")
			return
		}
		h.logger.Error("get doctor failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to book appointment")
		return
	}
	if !profile.Available {
		writeError(w, http.StatusConflict, domain.ErrDoctorUnavailable.Error())
		return
	}

	appt := &domain.Appointment{
		ID:          uuid.New(),
		PatientID:   userID,
		DoctorID:    doctorID,
		ScheduledAt: input.ScheduledAt,
		Status:      domain.AppointmentStatusBooked,
		FeesCents:   profile.FeesCents,
	}

	if err := h.appointments.Create(r.Context(), appt); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("create appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to book appointment")
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

// List handles GET /appointments - appointments where the caller participates
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	appts, err := h.appointments.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"count":        len(appts),
	})
}

// Get handles GET /appointments/{id}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	appt, err := h.appointments.GetByIDWithUsers(r.Context(), apptID)
	if err != nil {
		if errors.Is(err, domain.ErrAppointmentNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("get appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get appointment")
		return
	}

	role, _ := auth.GetRole(r.Context())
	if !appt.IsParticipant(userID) && role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "not a participant of this appointment")
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /appointments/{id}/cancel
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
		writeError(w, http.StatusInternalServerError, "failed to cancel appointment")
		return
	}

	if !appt.IsParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a participant of this appointment")
		return
	}
	if appt.Status != domain.AppointmentStatusBooked {
		writeError(w, http.StatusConflict, "appointment is not booked")
		return
	}

	if err := h.appointments.UpdateStatus(r.Context(), apptID, domain.AppointmentStatusCancelled); err != nil {
		h.logger.Error("cancel appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel appointment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Complete handles POST /appointments/{id}/complete - doctor marks it done
func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
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
		writeError(w, http.StatusInternalServerError, "failed to complete appointment")
		return
	}

	if appt.DoctorID != userID {
		writeError(w, http.StatusForbidden, "only the doctor can complete an appointment")
		return
	}
	if appt.Status != domain.AppointmentStatusBooked {
		writeError(w, http.StatusConflict, "appointment is not booked")
		return
	}

	if err := h.appointments.UpdateStatus(r.Context(), apptID, domain.AppointmentStatusCompleted); err != nil {
		h.logger.Error("complete appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete appointment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
