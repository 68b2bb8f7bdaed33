// Package config loads the dispatch server's startup configuration from
// environment variables. There is nothing to persist across restarts —
// tokens live only in the in-memory token cache for the life of the
// process — so unlike a typical application config package, there is no
// Save/Load file round trip here.
package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig holds Rate Limiter (C3) tuning.
type RateLimitConfig struct {
	MaxPerWindow int
	Window       time.Duration
}

// RetryConfig holds Retry Controller (C4) tuning.
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
}

// Configuration holds all settings read once at process startup.
type Configuration struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	RateLimit RateLimitConfig
	Retry     RetryConfig

	DefaultTimeout time.Duration
	LogLevel       string
}

// Default values, mirrored from §6's configuration table.
const (
	DefaultRateLimitMax           = 100
	DefaultRateLimitWindowSeconds = 60
	DefaultMaxRetries             = 3
	DefaultRetryBaseDelayMs       = 1000
	DefaultTimeoutMs              = 30000
)

// LoadFromEnv reads startup configuration from environment variables. It
// never fails on missing credentials — a health tool must be able to
// report hasCredentials:false — only on a malformed numeric override.
func LoadFromEnv() (*Configuration, error) {
	cfg := &Configuration{
		TenantID:     os.Getenv("DISPATCH_TENANT_ID"),
		ClientID:     os.Getenv("DISPATCH_CLIENT_ID"),
		ClientSecret: os.Getenv("DISPATCH_CLIENT_SECRET"),
		LogLevel:     envOrDefault("DISPATCH_LOG_LEVEL", "info"),
	}

	rateMax, err := envIntOrDefault("DISPATCH_RATE_LIMIT_MAX", DefaultRateLimitMax)
	if err != nil {
		return nil, err
	}
	windowSeconds, err := envIntOrDefault("DISPATCH_RATE_LIMIT_WINDOW_SECONDS", DefaultRateLimitWindowSeconds)
	if err != nil {
		return nil, err
	}
	maxRetries, err := envIntOrDefault("DISPATCH_RETRY_MAX", DefaultMaxRetries)
	if err != nil {
		return nil, err
	}
	retryBaseDelayMs, err := envIntOrDefault("DISPATCH_RETRY_BASE_DELAY_MS", DefaultRetryBaseDelayMs)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := envIntOrDefault("DISPATCH_REQUEST_TIMEOUT_MS", DefaultTimeoutMs)
	if err != nil {
		return nil, err
	}

	cfg.RateLimit = RateLimitConfig{MaxPerWindow: rateMax, Window: time.Duration(windowSeconds) * time.Second}
	cfg.Retry = RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Duration(retryBaseDelayMs) * time.Millisecond}
	cfg.DefaultTimeout = time.Duration(timeoutMs) * time.Millisecond

	return cfg, nil
}

// HasCredentials reports whether tenant/client/secret are all present.
func (c *Configuration) HasCredentials() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
