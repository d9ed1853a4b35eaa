package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8070" {
		t.Errorf("Port %s, want 8070", cfg.Server.Port)
	}
	if cfg.Pool.MaxRetries != 100 {
		t.Errorf("MaxRetries %d, want 100", cfg.Pool.MaxRetries)
	}
	if cfg.Pool.BackoffBase != 1.5 {
		t.Errorf("BackoffBase %v, want 1.5", cfg.Pool.BackoffBase)
	}
	if cfg.Pool.IdleLimit != 10*time.Minute {
		t.Errorf("IdleLimit %v, want 10m", cfg.Pool.IdleLimit)
	}
	if cfg.Cache.DefaultTTL != time.Hour {
		t.Errorf("Cache TTL %v, want 1h", cfg.Cache.DefaultTTL)
	}
	if cfg.Sandbox.RecordingGrace != 6*time.Minute {
		t.Errorf("RecordingGrace %v, want 6m", cfg.Sandbox.RecordingGrace)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POOL_MAX_RETRIES", "5")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("SCRIPT_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pool.MaxRetries != 5 {
		t.Errorf("MaxRetries %d, want 5", cfg.Pool.MaxRetries)
	}
	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Errorf("Cache TTL %v, want 30m", cfg.Cache.DefaultTTL)
	}
	if cfg.Sandbox.DefaultTimeout != 90*time.Second {
		t.Errorf("Script timeout %v, want 90s", cfg.Sandbox.DefaultTimeout)
	}
}

func TestLoadOrDefaultBadEnv(t *testing.T) {
	t.Setenv("POOL_MAX_RETRIES", "not-a-number")

	cfg := LoadOrDefault()
	if cfg.Pool.MaxRetries != 100 {
		t.Errorf("MaxRetries %d, want the 100 default", cfg.Pool.MaxRetries)
	}
}

func TestDefaultMatchesEnvDefaults(t *testing.T) {
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()

	if def.Pool != loaded.Pool {
		t.Errorf("Pool defaults diverge: %+v vs %+v", def.Pool, loaded.Pool)
	}
	if def.Cache != loaded.Cache {
		t.Errorf("Cache defaults diverge: %+v vs %+v", def.Cache, loaded.Cache)
	}
	if def.Sandbox != loaded.Sandbox {
		t.Errorf("Sandbox defaults diverge: %+v vs %+v", def.Sandbox, loaded.Sandbox)
	}
}
