package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultRateLimitMax, cfg.RateLimit.MaxPerWindow)
	assert.Equal(t, DefaultRateLimitWindowSeconds*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, DefaultRetryBaseDelayMs*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, DefaultTimeoutMs*time.Millisecond, cfg.DefaultTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HasCredentials())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_TENANT_ID", "tenant-x")
	t.Setenv("DISPATCH_CLIENT_ID", "client-x")
	t.Setenv("DISPATCH_CLIENT_SECRET", "secret-x")
	t.Setenv("DISPATCH_RATE_LIMIT_MAX", "250")
	t.Setenv("DISPATCH_RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("DISPATCH_RETRY_MAX", "5")
	t.Setenv("DISPATCH_RETRY_BASE_DELAY_MS", "500")
	t.Setenv("DISPATCH_REQUEST_TIMEOUT_MS", "60000")
	t.Setenv("DISPATCH_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, "tenant-x", cfg.TenantID)
	assert.Equal(t, 250, cfg.RateLimit.MaxPerWindow)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 60000*time.Millisecond, cfg.DefaultTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromEnvRejectsMalformedNumber(t *testing.T) {
	t.Setenv("DISPATCH_RATE_LIMIT_MAX", "not-a-number")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestHasCredentialsRequiresAllThree(t *testing.T) {
	cfg := &Configuration{TenantID: "t", ClientID: "c"}
	assert.False(t, cfg.HasCredentials())
	cfg.ClientSecret = "s"
	assert.True(t, cfg.HasCredentials())
}
