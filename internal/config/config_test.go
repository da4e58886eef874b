package config

import (
	"testing"
	"time"
)

func TestLoadAgentConfigDefaults(t *testing.T) {
	t.Setenv("AGENT_BASE_URL", "http://engine:9000")

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if !cfg.Enabled || cfg.BaseURL != "http://engine:9000" || cfg.Timeout != 60*time.Second {
		t.Fatalf("unexpected agent config: %+v", cfg)
	}
}

func TestLoadLifecycleConfigOverride(t *testing.T) {
	t.Setenv("LIFECYCLE_REDIRECT_DELAY", "2s")

	cfg, err := LoadLifecycleConfig()
	if err != nil {
		t.Fatalf("LoadLifecycleConfig: %v", err)
	}
	if cfg.RedirectDelay != 2*time.Second || cfg.SendLockTTL != 2*time.Minute {
		t.Fatalf("unexpected lifecycle config: %+v", cfg)
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Fatalf("capacity not clamped: %d", cfg.Capacity)
	}
	if cfg.TTL != 5*time.Second {
		t.Fatalf("ttl not raised to five intervals: %s", cfg.TTL)
	}
	if cfg.PerSecond() != 1 {
		t.Fatalf("unexpected rate: %v", cfg.PerSecond())
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X_FLAG", "off")
	if envBool("X_FLAG", true) {
		t.Fatalf("off should parse as false")
	}
	t.Setenv("X_FLAG", "maybe")
	if !envBool("X_FLAG", true) {
		t.Fatalf("unknown value should fall back to default")
	}
}
