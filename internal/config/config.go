package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the settleq server and worker.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Admin     AdminConfig
	Worker    WorkerConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AdminConfig struct {
	// TokenHash is the bcrypt hash of the admin bearer token. Empty means
	// the admin surface is open, which is only acceptable in development.
	TokenHash string
}

type WorkerConfig struct {
	APIBaseURL        string
	PollInterval      time.Duration
	JobTimeout        time.Duration
	ReportMaxAttempts int
	ReportBackoff     time.Duration
	ReportBackoffMax  time.Duration
}

type ReconcileConfig struct {
	// StuckAfter is how long a job may sit in RUNNING past its scheduled
	// time before the scanner reports it as stuck.
	StuckAfter time.Duration
}

type RateLimitConfig struct {
	JobsPerMinute int
}

// Load reads configuration from environment variables and validates it for
// the API server process. Returns an error with a descriptive message if any
// required value is missing or invalid.
func Load() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validateServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads configuration for the worker process. The worker only
// talks to the API over HTTP, so the database and redis sections are not
// required.
func LoadWorker() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port: envInt("SETTLEQ_PORT", 8080),
			Env:  envString("SETTLEQ_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
		Worker: WorkerConfig{
			APIBaseURL:        envString("WORKER_API_BASE_URL", "http://localhost:8080"),
			PollInterval:      envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			JobTimeout:        envDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
			ReportMaxAttempts: envInt("WORKER_REPORT_MAX_ATTEMPTS", 4),
			ReportBackoff:     envDuration("WORKER_REPORT_BACKOFF", time.Second),
			ReportBackoffMax:  envDuration("WORKER_REPORT_BACKOFF_MAX", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			StuckAfter: envDuration("RECONCILE_STUCK_AFTER", 60*time.Minute),
		},
		RateLimit: RateLimitConfig{
			JobsPerMinute: envInt("RATE_LIMIT_JOBS_PER_MINUTE", 60),
		},
	}
}

func (c *Config) validateServer() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Env == "production" && c.Admin.TokenHash == "" {
		return fmt.Errorf("ADMIN_TOKEN_HASH is required in production")
	}

	if c.Reconcile.StuckAfter <= 0 {
		return fmt.Errorf("RECONCILE_STUCK_AFTER must be positive")
	}

	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.APIBaseURL == "" {
		return fmt.Errorf("WORKER_API_BASE_URL is required")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("WORKER_JOB_TIMEOUT must be positive")
	}
	if c.Worker.ReportMaxAttempts < 1 {
		return fmt.Errorf("WORKER_REPORT_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
