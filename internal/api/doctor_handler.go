package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/database"
	"github.com/medbook/medbook/internal/domain"
)

// DoctorHandler handles doctor directory and admin provisioning endpoints
type DoctorHandler struct {
	auth    *auth.Service
	doctors *database.DoctorRepository
	logger  *slog.Logger
}

func NewDoctorHandler(authService *auth.Service, doctors *database.DoctorRepository, logger *slog.Logger) *DoctorHandler {
	return &DoctorHandler{
		auth:    authService,
		doctors: doctors,
		logger:  logger,
	}
}

// List handles GET /doctors?specialty=...&limit=...
func (h *DoctorHandler) List(w http.ResponseWriter, r *http.Request) {
	specialty := r.URL.Query().Get("specialty")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	doctors, err := h.doctors.List(r.Context(), specialty, limit)
	if err != nil {
		h.logger.Error("list doctors failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list doctors")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doctors": doctors,
		"count":   len(doctors),
	})
}

// Get handles GET /doctors/{id}
func (h *DoctorHandler) Get(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctor ID")
		return
	}

	profile, err := h.doctors.GetByUserID(r.Context(), doctorID)
	if err != nil {
		if errors.Is(err, domain.ErrDoctorNotFound) {
			writeError(w, http.StatusNotFound, "doctor not found")
			return
		}
		h.logger.Error("get doctor failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get doctor")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Create handles POST /admin/doctors - provisions a doctor account with profile
func (h *DoctorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		auth.CreateDoctorInput
		Specialty       string `json:"specialty"`
		Degree          string `json:"degree"`
		ExperienceYears int    `json:"experience_years"`
		FeesCents       int64  `json:"fees_cents"`
		About           string `json:"about"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.Specialty == "" {
		writeError(w, http.StatusBadRequest, "specialty is required")
		return
	}

	user, err := h.auth.CreateDoctor(r.Context(), input.CreateDoctorInput)
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := &domain.DoctorProfile{
		UserID:          user.ID,
		Specialty:       input.Specialty,
		Degree:          input.Degree,
		ExperienceYears: input.ExperienceYears,
		FeesCents:       input.FeesCents,
		About:           input.About,
		Available:       true,
	}
	if err := h.doctors.Upsert(r.Context(), profile); err != nil {
		h.logger.Error("create doctor profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create doctor profile")
		return
	}

	profile.User = &domain.PublicUser{ID: user.ID, Name: user.Name, Role: user.Role}
	writeJSON(w, http.StatusCreated, profile)
}

// UpdateProfile handles PUT /doctors/me - the doctor edits their own profile
func (h *DoctorHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input struct {
		Specialty       string `json:"specialty"`
		Degree          string `json:"degree"`
		ExperienceYears int    `json:"experience_years"`
		FeesCents       int64  `json:"fees_cents"`
		About           string `json:"about"`
		Available       bool   `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.Specialty == "" {
		writeError(w, http.StatusBadRequest, "specialty is required")
		return
	}

	profile := &domain.DoctorProfile{
		UserID:          userID,
		Specialty:       input.Specialty,
		Degree:          input.Degree,
		ExperienceYears: input.ExperienceYears,
		FeesCents:       input.FeesCents,
		About:           input.About,
		Available:       input.Available,
	}
	if err := h.doctors.Upsert(r.Context(), profile); err != nil {
		h.logger.Error("update doctor profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
