package server

import (
	"testing"
	"time"
)

// TestDefaultConfig verifies the baked-in defaults used when nothing is
// configured.
func TestDefaultConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8000" {
		t.Errorf("Expected default port :8000, got %s", cfg.Port)
	}
	if cfg.MaxMessageSize != 8192 {
		t.Errorf("Expected default max message size 8192, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("Expected default rate limit burst 20, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected default refill interval 1s, got %s", cfg.RateLimit.RefillInterval)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %s", cfg.ShutdownTimeout)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Unexpected default allowed origins: %v", cfg.AllowedOrigins)
	}
}

// TestSetConfigSanitizes verifies that invalid values fall back to defaults
// rather than propagating into the running service.
func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		Port:           "",
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: 0},
	})

	cfg := currentConfig()
	if cfg.Port != ":8000" {
		t.Errorf("Expected sanitized port :8000, got %s", cfg.Port)
	}
	if cfg.MaxMessageSize != 8192 {
		t.Errorf("Expected sanitized max message size 8192, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("Expected sanitized burst 20, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected sanitized refill interval 1s, got %s", cfg.RateLimit.RefillInterval)
	}
}

// TestNewConfigFromEnv verifies environment overrides and fallback on
// unparseable values.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("ALLOWED_ORIGINS", "https://mingle.example.com, https://staging.mingle.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "16384")
	t.Setenv("RATE_LIMIT_BURST", "50")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("SHUTDOWN_TIMEOUT", "5")

	cfg := NewConfigFromEnv()

	if cfg.Port != ":9000" {
		t.Errorf("Expected port :9000, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("Expected 2 allowed origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[1] != "https://staging.mingle.example.com" {
		t.Errorf("Expected origins to be trimmed, got %q", cfg.AllowedOrigins[1])
	}
	if cfg.MaxMessageSize != 16384 {
		t.Errorf("Expected max message size 16384, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 50 {
		t.Errorf("Expected burst 50, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("Expected refill interval 2s, got %s", cfg.RateLimit.RefillInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %s", cfg.ShutdownTimeout)
	}
}

func TestNewConfigFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-3")

	cfg := NewConfigFromEnv()

	if cfg.MaxMessageSize != 8192 {
		t.Errorf("Expected fallback max message size 8192, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("Expected fallback burst 20, got %d", cfg.RateLimit.Burst)
	}
}
