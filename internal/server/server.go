package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/medbook/medbook/internal/api"
	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/chat"
	"github.com/medbook/medbook/internal/config"
	"github.com/medbook/medbook/internal/database"
	"github.com/medbook/medbook/internal/domain"
	"github.com/medbook/medbook/internal/middleware"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB            *database.DB
	AuthService   *auth.Service
	AuthHandler   *api.AuthHandler
	UserHandler   *api.UserHandler
	DoctorHandler *api.DoctorHandler
	ApptHandler   *api.AppointmentHandler
	MsgHandler    *api.MessageHandler
	ChatHandler   *chat.Handler
	RateLimiter   *middleware.RateLimiter
	Logger        *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	// Register routes
	registerRoutes(mux, deps)

	// Wrap with middleware
	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Ready check - verifies DB connectivity
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// =========================================================================
	// Auth routes (public)
	// =========================================================================
	mux.HandleFunc("POST /auth/register", deps.AuthHandler.Register)
	mux.HandleFunc("POST /auth/login", deps.AuthHandler.Login)
	mux.HandleFunc("POST /auth/refresh", deps.AuthHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", deps.AuthHandler.Logout)

	// =========================================================================
	// Protected routes (require auth)
	// =========================================================================
	authMiddleware := auth.Middleware(deps.AuthService)
	rateLimited := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(deps.RateLimiter.Middleware(h))
	}

	// Me endpoint
	mux.Handle("GET /auth/me", authMiddleware(http.HandlerFunc(deps.AuthHandler.Me)))

	// =========================================================================
	// User routes
	// =========================================================================
	mux.Handle("GET /users/me", rateLimited(deps.UserHandler.GetMe))
	mux.Handle("PUT /users/me", rateLimited(deps.UserHandler.UpdateProfile))

	// =========================================================================
	// Doctor routes
	// =========================================================================
	mux.HandleFunc("GET /doctors", deps.DoctorHandler.List) // public directory
	mux.HandleFunc("GET /doctors/{id}", deps.DoctorHandler.Get)

	doctorOnly := auth.RequireRole(domain.RoleDoctor)
	mux.Handle("PUT /doctors/me", authMiddleware(doctorOnly(http.HandlerFunc(deps.DoctorHandler.UpdateProfile))))

	// Admin provisioning
	adminOnly := auth.RequireRole(domain.RoleAdmin)
	mux.Handle("POST /admin/doctors", authMiddleware(adminOnly(http.HandlerFunc(deps.DoctorHandler.Create))))

	// =========================================================================
	// Appointment routes
	// =========================================================================
	mux.Handle("POST /appointments", rateLimited(deps.ApptHandler.Book))
	mux.Handle("GET /appointments", rateLimited(deps.ApptHandler.List))
	mux.Handle("GET /appointments/{id}", rateLimited(deps.ApptHandler.Get))
	mux.Handle("POST /appointments/{id}/cancel", rateLimited(deps.ApptHandler.Cancel))
	mux.Handle("POST /appointments/{id}/complete", rateLimited(deps.ApptHandler.Complete))

	// =========================================================================
	// Message history
	// =========================================================================
	mux.Handle("GET /appointments/{id}/messages", rateLimited(deps.MsgHandler.List))

	// =========================================================================
	// WebSocket route (authenticates via token query param before upgrade)
	// =========================================================================
	mux.Handle("GET /ws", deps.ChatHandler)
}
