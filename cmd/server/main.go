package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medbook/medbook/internal/api"
	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/chat"
	"github.com/medbook/medbook/internal/config"
	"github.com/medbook/medbook/internal/database"
	"github.com/medbook/medbook/internal/middleware"
	"github.com/medbook/medbook/internal/pubsub"
	"github.com/medbook/medbook/internal/server"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context for initialization
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, "migrations"); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := database.NewUserRepository(db)
	doctorRepo := database.NewDoctorRepository(db)
	apptRepo := database.NewAppointmentRepository(db)
	msgRepo := database.NewMessageRepository(db)

	// Initialize token service (use a default key for dev if not set)
	jwtKey := cfg.JWTSigningKey
	if jwtKey == "" {
		if cfg.IsDevelopment() {
			jwtKey = "dev-signing-key-do-not-use-in-production!!" // 44 chars
			slog.Warn("using default JWT signing key - DO NOT USE IN PRODUCTION")
		} else {
			slog.Error("JWT_SIGNING_KEY is required in production")
			os.Exit(1)
		}
	}

	tokenService, err := auth.NewTokenService(jwtKey)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	// Initialize auth service
	authService := auth.NewService(userRepo, tokenService)

	// Initialize PubSub (in-memory for single instance, Redis for multi-instance)
	var ps pubsub.PubSub
	if cfg.PubSubType == "redis" {
		rps, err := pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		ps = rps
		slog.Info("using redis pubsub")
	} else {
		ps = pubsub.NewMemoryPubSub()
	}
	defer ps.Close()

	// Initialize handlers
	authHandler := api.NewAuthHandler(authService, userRepo, logger)
	userHandler := api.NewUserHandler(userRepo, logger)
	doctorHandler := api.NewDoctorHandler(authService, doctorRepo, logger)
	apptHandler := api.NewAppointmentHandler(apptRepo, doctorRepo, logger)
	msgHandler := api.NewMessageHandler(msgRepo, apptRepo, logger)

	// Initialize chat hub and handler
	hub := chat.NewHub(apptRepo, msgRepo, ps, logger)
	go hub.Run(context.Background())
	chatHandler := chat.NewHandler(hub, authService, logger)

	// Per-user rate limiting for authenticated endpoints
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin)

	// Create and start server
	deps := &server.Dependencies{
		DB:            db,
		AuthService:   authService,
		AuthHandler:   authHandler,
		UserHandler:   userHandler,
		DoctorHandler: doctorHandler,
		ApptHandler:   apptHandler,
		MsgHandler:    msgHandler,
		ChatHandler:   chatHandler,
		RateLimiter:   rateLimiter,
		Logger:        logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
