package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

// Credential store backends
const (
	CredentialBackendGCP  = "gcp"
	CredentialBackendAEAD = "aead"
)

// RateLimitOverride replaces part of a marketplace's default bucket
type RateLimitOverride struct {
	RPS   float64
	Burst int
}

// Config holds all configuration for the marketplace sync service
type Config struct {
	// Server
	Port               string
	Environment        string
	LogLevel           string
	CORSAllowedOrigins []string

	// Database
	DatabaseURL string

	// Credential Store
	CredentialBackend       string
	GCPProjectID            string
	CredentialEncryptionKey string
	CredentialCacheTTL      time.Duration

	// Redis (webhook seen-set and distributed sync lock)
	RedisURL      string
	RedisPassword string

	// NATS
	NATSURL string

	// Credits
	CreditsServiceURL string
	CreditsPerSync    int
	CreditsPerPush    int

	// Sync Settings
	SyncBatchSize   int
	SyncMaxParallel int
	SyncInterval    time.Duration
	SyncTimeout     time.Duration
	SyncLockTTL     time.Duration

	// Retry / transport
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMaxRetries   int
	RequestTimeout    time.Duration

	// Rate limit overrides keyed by "<MARKETPLACE>_<CLASS>", e.g. "SHOPIFY_READ"
	RateLimits map[string]RateLimitOverride

	// Marketplace base URL overrides keyed by marketplace, e.g. "SHOPIFY"
	MarketplaceBaseURLs map[string]string

	// Webhooks
	WebhookDedupTTL time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	// Build DATABASE_URL from components using GCP Secret Manager for password
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := secrets.GetDBPassword()
		dbName := getEnv("DB_NAME", "tesseract_hub")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	environment := getEnv("ENVIRONMENT", "development")
	defaultLevel := "debug"
	if environment == "production" {
		defaultLevel = "info"
	}

	redisURL := getEnv("REDIS_URL", "")
	redisPassword := ""
	if redisURL != "" {
		redisPassword = secrets.GetRedisPassword()
	}

	return &Config{
		Port:               getEnv("PORT", "8099"),
		Environment:        environment,
		LogLevel:           getEnv("LOG_LEVEL", defaultLevel),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DatabaseURL:        databaseURL,

		CredentialBackend:       strings.ToLower(getEnv("CREDENTIAL_BACKEND", CredentialBackendGCP)),
		GCPProjectID:            getEnv("GCP_PROJECT_ID", ""),
		CredentialEncryptionKey: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		CredentialCacheTTL:      getEnvAsDuration("CREDENTIAL_CACHE_TTL", 5*time.Minute),

		RedisURL:      redisURL,
		RedisPassword: redisPassword,

		NATSURL: getEnv("NATS_URL", ""),

		CreditsServiceURL: getEnv("CREDITS_SERVICE_URL", ""),
		CreditsPerSync:    getEnvAsInt("CREDITS_PER_SYNC", 1),
		CreditsPerPush:    getEnvAsInt("CREDITS_PER_PUSH", 1),

		SyncBatchSize:   getEnvAsInt("SYNC_BATCH_SIZE", 100),
		SyncMaxParallel: getEnvAsInt("SYNC_MAX_PARALLEL", 4),
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", 0),
		SyncTimeout:     getEnvAsDuration("SYNC_TIMEOUT", 30*time.Minute),
		SyncLockTTL:     getEnvAsDuration("SYNC_LOCK_TTL", 35*time.Minute),

		RetryInitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", time.Second),
		RetryMaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
		RetryMaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", 5),
		RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),

		RateLimits:          loadRateLimits(os.Environ()),
		MarketplaceBaseURLs: loadBaseURLs(os.Environ()),

		WebhookDedupTTL: getEnvAsDuration("WEBHOOK_DEDUP_TTL", 24*time.Hour),
	}
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.CredentialBackend {
	case CredentialBackendGCP:
		if c.GCPProjectID == "" {
			return errors.New("GCP_PROJECT_ID is required for the gcp credential backend")
		}
	case CredentialBackendAEAD:
		if _, err := c.EncryptionKey(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown CREDENTIAL_BACKEND %q", c.CredentialBackend)
	}
	if c.SyncMaxParallel < 1 {
		return errors.New("SYNC_MAX_PARALLEL must be at least 1")
	}
	return nil
}

// EncryptionKey decodes CREDENTIAL_ENCRYPTION_KEY, given as base64 or hex
func (c *Config) EncryptionKey() ([]byte, error) {
	raw := strings.TrimSpace(c.CredentialEncryptionKey)
	if raw == "" {
		return nil, errors.New("CREDENTIAL_ENCRYPTION_KEY is required for the aead credential backend")
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, errors.New("CREDENTIAL_ENCRYPTION_KEY must decode to 32 bytes")
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// loadRateLimits collects RATE_LIMIT_<MARKETPLACE>_<CLASS>_RPS and _BURST
func loadRateLimits(environ []string) map[string]RateLimitOverride {
	const prefix = "RATE_LIMIT_"

	limits := make(map[string]RateLimitOverride)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || value == "" {
			continue
		}
		name := strings.TrimPrefix(key, prefix)

		switch {
		case strings.HasSuffix(name, "_RPS"):
			rps, err := strconv.ParseFloat(value, 64)
			if err != nil || rps <= 0 {
				continue
			}
			name = strings.TrimSuffix(name, "_RPS")
			o := limits[name]
			o.RPS = rps
			limits[name] = o
		case strings.HasSuffix(name, "_BURST"):
			burst, err := strconv.Atoi(value)
			if err != nil || burst <= 0 {
				continue
			}
			name = strings.TrimSuffix(name, "_BURST")
			o := limits[name]
			o.Burst = burst
			limits[name] = o
		}
	}
	return limits
}

// loadBaseURLs collects <MARKETPLACE>_BASE_URL for sandbox endpoints
func loadBaseURLs(environ []string) map[string]string {
	urls := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasSuffix(key, "_BASE_URL") {
			continue
		}
		switch name := strings.TrimSuffix(key, "_BASE_URL"); name {
		case "SHOPIFY", "AMAZON", "DUKAAN":
			urls[name] = value
		}
	}
	return urls
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
