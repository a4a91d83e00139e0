package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toora-ai/be-approvals/internal/config"
	"github.com/toora-ai/be-approvals/internal/database"
	"github.com/toora-ai/be-approvals/internal/handler"
	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/middleware"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
	"github.com/toora-ai/be-approvals/internal/service"
	"github.com/toora-ai/be-approvals/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}
	log.Info().Msg("Database connection established")

	// Initialize Redis (decision channel, event bus, job queue)
	redisClient, err := notify.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	channel := notify.NewRedisChannel(redisClient, log.Logger)
	jobQueue := queue.New(redisClient)
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")

	// Initialize repositories
	approvalStore := repository.NewPostgresApprovalStore(db)
	runStore := repository.NewPostgresRunStore(db)

	// Initialize services
	approvalService := service.NewApprovalService(approvalStore, channel, channel, log)

	// Background expiry sweep: pending records reach a terminal state even
	// when their waiter is gone.
	go approvalService.RunSweeper(ctx, cfg.Approval.SweepInterval)

	// Observer fan-out: relay the event stream to connected dashboards.
	hub := ws.NewHub(log)
	eventSub, err := channel.SubscribeEvents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Event stream unavailable; observers will not receive live updates")
	} else {
		defer eventSub.Close()
		go hub.Relay(ctx, eventSub.Messages())
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, jobQueue, runStore, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Approval routes
	mux.HandleFunc("/api/v1/approvals", httpHandler.ListApprovals)
	mux.HandleFunc("/api/v1/approvals/get", httpHandler.GetApproval)
	mux.HandleFunc("/api/v1/approvals/approve", httpHandler.ApproveApproval)
	mux.HandleFunc("/api/v1/approvals/reject", httpHandler.RejectApproval)

	// Agent routes
	mux.HandleFunc("/api/v1/agent/run", httpHandler.RunAgent)
	mux.HandleFunc("/api/v1/agent/status", httpHandler.AgentStatus)

	// Observer socket
	mux.Handle("/ws", hub)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
