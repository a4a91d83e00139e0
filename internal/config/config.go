package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration, loaded from the environment.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Approval ApprovalConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig configures the Redis client used for the decision channel,
// the status event bus and the agent job queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig configures the outbound notification transport.
type NATSConfig struct {
	URL string
}

// ApprovalConfig carries the gate timing knobs.
type ApprovalConfig struct {
	Timeout       time.Duration // hard deadline on every approval request
	PollInterval  time.Duration // fallback store re-check while waiting
	SweepInterval time.Duration // background expiry sweep cadence
}

// Load reads configuration from the environment, applying defaults suitable
// for local development. It fails only on values that parse but are invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-approvals"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "toora"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "toora"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Approval: ApprovalConfig{
			Timeout:       getEnvDuration("APPROVAL_TIMEOUT", 600*time.Second),
			PollInterval:  getEnvDuration("APPROVAL_POLL_INTERVAL", 2*time.Second),
			SweepInterval: getEnvDuration("APPROVAL_SWEEP_INTERVAL", 30*time.Second),
		},
	}

	if cfg.Approval.Timeout <= 0 {
		return nil, fmt.Errorf("APPROVAL_TIMEOUT must be positive, got %s", cfg.Approval.Timeout)
	}
	if cfg.Approval.PollInterval <= 0 {
		return nil, fmt.Errorf("APPROVAL_POLL_INTERVAL must be positive, got %s", cfg.Approval.PollInterval)
	}
	if cfg.Approval.PollInterval >= cfg.Approval.Timeout {
		return nil, fmt.Errorf("APPROVAL_POLL_INTERVAL (%s) must be shorter than APPROVAL_TIMEOUT (%s)",
			cfg.Approval.PollInterval, cfg.Approval.Timeout)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a Go duration string
// ("600s", "2s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
