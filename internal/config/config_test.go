package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()
	assert.Equal(t, "8099", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, CredentialBackendGCP, cfg.CredentialBackend)
	assert.Equal(t, 4, cfg.SyncMaxParallel)
	assert.Equal(t, time.Duration(0), cfg.SyncInterval)
	assert.Equal(t, time.Second, cfg.RetryInitialDelay)
	assert.Equal(t, 60*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 5, cfg.RetryMaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.WebhookDedupTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SYNC_INTERVAL", "15m")
	t.Setenv("RETRY_MAX_RETRIES", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_SHOPIFY_READ_RPS", "4")
	t.Setenv("RATE_LIMIT_SHOPIFY_READ_BURST", "80")
	t.Setenv("RATE_LIMIT_DUKAAN_WRITE_BURST", "not-a-number")
	t.Setenv("SHOPIFY_BASE_URL", "http://localhost:9000")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 2, cfg.RetryMaxRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, RateLimitOverride{RPS: 4, Burst: 80}, cfg.RateLimits["SHOPIFY_READ"])
	_, ok := cfg.RateLimits["DUKAAN_WRITE"]
	assert.False(t, ok)
	assert.Equal(t, "http://localhost:9000", cfg.MarketplaceBaseURLs["SHOPIFY"])
}

func TestValidate(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://x", CredentialBackend: CredentialBackendGCP, SyncMaxParallel: 1}
	assert.Error(t, cfg.Validate())

	cfg.GCPProjectID = "project"
	assert.NoError(t, cfg.Validate())

	cfg.CredentialBackend = CredentialBackendAEAD
	assert.Error(t, cfg.Validate())

	cfg.CredentialEncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	assert.NoError(t, cfg.Validate())

	cfg.CredentialBackend = "vault"
	assert.Error(t, cfg.Validate())
}

func TestEncryptionKeyAcceptsHex(t *testing.T) {
	cfg := &Config{CredentialEncryptionKey: strings.Repeat("ab", 32)}
	key, err := cfg.EncryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	cfg.CredentialEncryptionKey = "short"
	_, err = cfg.EncryptionKey()
	assert.Error(t, err)
}
