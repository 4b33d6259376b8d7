// Package config provides environment-aware configuration management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	slruntime "github.com/camdencbrown/relay/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment
type Environment = slruntime.Environment

const (
	Development = slruntime.Development
	Testing     = slruntime.Testing
	Production  = slruntime.Production
)

// StorageMode selects where blob output is written.
type StorageMode string

const (
	StorageLocal  StorageMode = "local"
	StorageObject StorageMode = "object_store"
)

// Config holds all application configuration for the relay server.
type Config struct {
	Env Environment

	// HTTP
	Port int

	// Database
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Storage
	StorageMode     StorageMode
	LocalStoragePath string
	S3Bucket        string
	S3Region        string

	// Encryption (C2 connection-credential envelope key, 32 bytes)
	EncryptionKey string

	// Auth
	RequireAuth bool

	// LLM-backed ontology proposals (C9 falls back to heuristics when unset)
	LLMAPIKey string

	// Logging
	LogLevel  string
	LogFormat string

	// Scheduler
	SchedulerPollInterval time.Duration
	WorkerPoolSize        int

	// Timeouts (seconds), per the bounded-operation model
	FetchTimeout      time.Duration
	SQLTimeout        time.Duration
	ConnectionTestTTL time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// CORS: origins (comma-separated, "*" for any) allowed to call the API
	// from a browser. Empty disables CORS handling.
	CORSAllowedOrigins []string
}

// Load loads configuration based on the RELAY_ENV environment variable,
// falling back to an optional config/<env>.env file for local overrides.
func Load() (*Config, error) {
	envStr := os.Getenv("RELAY_ENV")
	if envStr == "" {
		envStr = string(slruntime.Development)
	}

	parsedEnv, ok := slruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid RELAY_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.Port = getIntEnv("PORT", 8080)

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	if c.DatabaseURL == "" && c.Env == Production {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout := getEnv("DB_IDLE_TIMEOUT", "5m")
	idle, err := time.ParseDuration(dbIdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idle

	c.StorageMode = StorageMode(getEnv("STORAGE_MODE", string(StorageLocal)))
	if c.StorageMode != StorageLocal && c.StorageMode != StorageObject {
		return fmt.Errorf("invalid STORAGE_MODE: %s (must be local or object_store)", c.StorageMode)
	}
	c.LocalStoragePath = getEnv("LOCAL_STORAGE_PATH", "./data/blobs")
	c.S3Bucket = getEnv("S3_BUCKET", "")
	c.S3Region = getEnv("S3_REGION", "us-east-1")
	if c.StorageMode == StorageObject && c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_MODE=object_store")
	}

	c.EncryptionKey = getEnv("ENCRYPTION_KEY", "")
	if c.EncryptionKey == "" && c.Env == Production {
		return fmt.Errorf("ENCRYPTION_KEY is required in production")
	}

	c.RequireAuth = getBoolEnv("REQUIRE_AUTH", c.Env == Production)
	c.LLMAPIKey = getEnv("LLM_API_KEY", "")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	pollInterval := getEnv("SCHEDULER_POLL_INTERVAL", "30s")
	c.SchedulerPollInterval, err = time.ParseDuration(pollInterval)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_POLL_INTERVAL: %w", err)
	}
	c.WorkerPoolSize = getIntEnv("WORKER_POOL_SIZE", 4)

	fetchTimeout := getEnv("FETCH_TIMEOUT", "30s")
	c.FetchTimeout, err = time.ParseDuration(fetchTimeout)
	if err != nil {
		return fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
	}
	sqlTimeout := getEnv("SQL_TIMEOUT", "15s")
	c.SQLTimeout, err = time.ParseDuration(sqlTimeout)
	if err != nil {
		return fmt.Errorf("invalid SQL_TIMEOUT: %w", err)
	}
	connTestTTL := getEnv("CONNECTION_TEST_TIMEOUT", "10s")
	c.ConnectionTestTTL, err = time.ParseDuration(connTestTTL)
	if err != nil {
		return fmt.Errorf("invalid CONNECTION_TEST_TIMEOUT: %w", err)
	}

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
			}
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in testing environment
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}
	if c.IsProduction() {
		if c.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY must be set in production")
		}
		if !c.RequireAuth {
			return fmt.Errorf("REQUIRE_AUTH must be true in production")
		}
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
