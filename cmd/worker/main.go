package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/toora-ai/be-approvals/internal/client"
	"github.com/toora-ai/be-approvals/internal/config"
	"github.com/toora-ai/be-approvals/internal/database"
	"github.com/toora-ai/be-approvals/internal/gate"
	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
	"github.com/toora-ai/be-approvals/internal/worker"
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
		ServiceName: cfg.Service.Name + "-worker",
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name+"-worker").
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Worker")

	// Cancel on SIGINT/SIGTERM; the worker loop exits between jobs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// Initialize NATS
	natsClient, err := client.NewNats(cfg.NATS.URL, cfg.Service.Name+"-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer natsClient.Close()
	log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")

	// Initialize repositories
	approvalStore := repository.NewPostgresApprovalStore(db)
	runStore := repository.NewPostgresRunStore(db)

	// Wire the gate and the outbound publishers
	notifier := client.NewNotifier(natsClient, log.Logger)
	dispatcher := client.NewDispatcher(natsClient, log.Logger)
	approvalGate := gate.New(approvalStore, channel, notifier, log, gate.Options{
		Timeout:      cfg.Approval.Timeout,
		PollInterval: cfg.Approval.PollInterval,
	})

	w := worker.New(jobQueue, runStore, approvalGate, dispatcher, channel, log)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Worker loop failed")
	}

	log.Info().Msg("Worker stopped")
}
