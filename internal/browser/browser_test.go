package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Headless {
		t.Error("Default profile must be headless")
	}
	if cfg.Version != "latest" {
		t.Errorf("Version %s, want latest", cfg.Version)
	}
	if cfg.Timeouts.PageLoad != 30*time.Second {
		t.Errorf("PageLoad timeout %v, want 30s", cfg.Timeouts.PageLoad)
	}
	if cfg.ReconnectPerScript {
		t.Error("ReconnectPerScript must default to off")
	}
}

func TestLoadProfileEmptyPath(t *testing.T) {
	cfg, err := LoadProfile("")
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if cfg.Version != DefaultConfig().Version {
		t.Error("Empty path must yield the built-in profile")
	}
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := []byte("version: \"120.0\"\nheadless: false\nreconnect_per_script: true\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if cfg.Version != "120.0" {
		t.Errorf("Version %s, want 120.0", cfg.Version)
	}
	if cfg.Headless {
		t.Error("Headless override not applied")
	}
	if !cfg.ReconnectPerScript {
		t.Error("ReconnectPerScript override not applied")
	}
	// Untouched fields keep their defaults.
	if cfg.Timeouts.ImplicitWait != 10*time.Second {
		t.Errorf("ImplicitWait %v, want the 10s default", cfg.Timeouts.ImplicitWait)
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing profile file")
	}
}
