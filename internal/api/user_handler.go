package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/database"
)

// UserHandler handles user profile endpoints
type UserHandler struct {
	users  *database.UserRepository
	logger *slog.Logger
}

func NewUserHandler(users *database.UserRepository, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(input.Name) < 2 || len(input.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name must be 2-100 characters")
		return
	}
	if len(input.Phone) > 32 {
		writeError(w, http.StatusBadRequest, "phone too long")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	user.Name = input.Name
	user.Phone = input.Phone

	if err := h.users.Update(r.Context(), user); err != nil {
		h.logger.Error("update user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
