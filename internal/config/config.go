// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// Identification providers.
const (
	ProviderMock     = "mock"
	ProviderPlantID  = "plantid"
	ProviderPlantNet = "plantnet"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port            int
	BaseURL         string
	ShutdownTimeout time.Duration
	IdleTimeout     time.Duration // Stop after this long without requests (scale-to-zero), 0 disables

	// Database
	DatabaseDriver string // "libsql" (default) or "postgres"
	DatabaseURL    string
	TursoURL       string // Embedded replica sync URL (libsql only)
	TursoAuthToken string

	// Authentication (hosted auth provider)
	AuthJWTSecret     string // HS256 secret used by the auth provider to sign access tokens
	AuthJWTIssuer     string // Optional expected "iss"
	AuthJWTAudience   string // Optional expected "aud"
	AuthWebhookSecret string // Svix signing secret for auth provider webhooks

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeFetchTimeout  time.Duration // Bound on subscription re-fetch during reconciliation

	// Event ledger
	RedisURL       string        // When set, the ledger is shared through Redis
	EventLedgerTTL time.Duration // Retention of processed event IDs

	// Identification
	PlantProvider   string // "mock", "plantid" or "plantnet"
	PlantIDAPIKey   string
	PlantNetAPIKey  string
	IdentifyTimeout time.Duration
	MaxImageBytes   int64
	FreeScansPerDay int
	IdentifyRPM     int // Per-user request rate limit on /identify, 0 disables

	// Profile plan sweep
	ProfileSyncSchedule  string // robfig/cron schedule, empty disables
	ProfileSyncBatchSize int

	// CORS
	CORSOrigins []string

	// Object Storage (Tigris/S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name (one per environment)
	StorageRegion    string // Region (auto for Tigris)
	QuotaSettingsTTL time.Duration
	StoreScanImages  bool // Persist uploaded images under scans/{user}/{scan}.jpg
}

// Load reads configuration from the environment. A .env file in the working directory
// is loaded first when present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 0),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverLibSQL)),
		DatabaseURL:    getEnv("DATABASE_URL", "file:herbscan.db?_journal=WAL&_timeout=5000"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		AuthJWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTIssuer:     getEnv("AUTH_JWT_ISSUER", ""),
		AuthJWTAudience:   getEnv("AUTH_JWT_AUDIENCE", ""),
		AuthWebhookSecret: getEnv("AUTH_WEBHOOK_SECRET", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeFetchTimeout:  getEnvDuration("STRIPE_FETCH_TIMEOUT", 5*time.Second),

		RedisURL:       getEnv("REDIS_URL", ""),
		EventLedgerTTL: getEnvDuration("EVENT_LEDGER_TTL", 72*time.Hour),

		PlantProvider:   strings.ToLower(getEnv("PLANT_PROVIDER", ProviderMock)),
		PlantIDAPIKey:   getEnv("PLANTID_API_KEY", ""),
		PlantNetAPIKey:  getEnv("PLANTNET_API_KEY", ""),
		IdentifyTimeout: getEnvDuration("IDENTIFY_TIMEOUT", 20*time.Second),
		MaxImageBytes:   int64(getEnvInt("MAX_IMAGE_BYTES", 5*1024*1024)),
		FreeScansPerDay: getEnvInt("FREE_SCANS_PER_DAY", 5),
		IdentifyRPM:     getEnvInt("IDENTIFY_RATE_LIMIT", 20),

		ProfileSyncSchedule:  getEnv("PROFILE_SYNC_SCHEDULE", "@every 1h"),
		ProfileSyncBatchSize: getEnvInt("PROFILE_SYNC_BATCH_SIZE", 500),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"}),

		// Object Storage (Tigris/S3-compatible) - uses Fly's standard env vars
		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		QuotaSettingsTTL: getEnvDuration("QUOTA_SETTINGS_TTL", 5*time.Minute),
		StoreScanImages:  getEnvBool("STORE_SCAN_IMAGES", true),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverLibSQL, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverLibSQL, DriverPostgres, c.DatabaseDriver)
	}

	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	switch c.PlantProvider {
	case ProviderMock:
	case ProviderPlantID:
		if c.PlantIDAPIKey == "" {
			return fmt.Errorf("PLANTID_API_KEY is required when PLANT_PROVIDER=%s", ProviderPlantID)
		}
	case ProviderPlantNet:
		if c.PlantNetAPIKey == "" {
			return fmt.Errorf("PLANTNET_API_KEY is required when PLANT_PROVIDER=%s", ProviderPlantNet)
		}
	default:
		return fmt.Errorf("unknown PLANT_PROVIDER %q", c.PlantProvider)
	}

	if c.FreeScansPerDay < 0 {
		return fmt.Errorf("FREE_SCANS_PER_DAY must not be negative")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	return nil
}

// StripeConfigured returns true if the webhook can be verified.
func (c *Config) StripeConfigured() bool {
	return c.StripeWebhookSecret != ""
}

// LedgerShared returns true if the event ledger should use Redis.
func (c *Config) LedgerShared() bool {
	return c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
