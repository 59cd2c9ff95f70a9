package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/database"
	"github.com/medbook/medbook/internal/domain"
)

const refreshCookieName = "refresh_token"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth   *auth.Service
	users  *database.UserRepository
	logger *slog.Logger
}

func NewAuthHandler(authService *auth.Service, users *database.UserRepository, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		users:  users,
		logger: logger,
	}
}

// Register handles POST /auth/register
//
//	@Summary		Register a new patient account
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		auth.RegisterInput	true	"Registration details"
//	@Success		201		{object}	map[string]interface{}
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Router			/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, tokens, err := h.auth.Register(r.Context(), input)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.setRefreshTokenCookie(w, tokens.RefreshToken)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":         user.ToPublic(),
		"access_token": tokens.AccessToken,
		"expires_at":   tokens.ExpiresAt,
	})
}

// Login handles POST /auth/login
//
//	@Summary		Login with email and password
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		auth.LoginInput	true	"Login credentials"
//	@Success		200		{object}	map[string]interface{}
//	@Failure		401		{object}	map[string]string
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input auth.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, tokens, err := h.auth.Login(r.Context(), input)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.setRefreshTokenCookie(w, tokens.RefreshToken)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user.ToPublic(),
		"access_token": tokens.AccessToken,
		"expires_at":   tokens.ExpiresAt,
	})
}

// Refresh handles POST /auth/refresh using the refresh token cookie
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	user, tokens, err := h.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.clearRefreshTokenCookie(w)
		h.handleAuthError(w, err)
		return
	}

	h.setRefreshTokenCookie(w, tokens.RefreshToken)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user.ToPublic(),
		"access_token": tokens.AccessToken,
		"expires_at":   tokens.ExpiresAt,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("logout failed", "error", err)
		}
	}

	h.clearRefreshTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
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

func (h *AuthHandler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		// Validation errors from the auth service are user-facing
		if msg := err.Error(); msg != "" && !isInternal(err) {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		h.logger.Error("auth error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// isInternal reports whether the error wraps a lower-level failure that
// should not be shown to clients
func isInternal(err error) bool {
	var wrapped interface{ Unwrap() error }
	return errors.As(err, &wrapped)
}

func (h *AuthHandler) setRefreshTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(h.auth.RefreshTokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
