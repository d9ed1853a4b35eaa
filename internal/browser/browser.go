// Package browser defines the BrowserSession capability consumed by the
// pool and the sandbox, together with the session configuration value.
//
// The concrete browser-driving protocol is not implemented here: a session is
// an opaque handle with lifecycle and command operations. The package ships a
// remote JSON/HTTP implementation and an in-memory fake for tests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// ErrSessionGone indicates the underlying session or its connection is no
// longer usable. Callers treat it as a session fault.
var ErrSessionGone = errors.New("browser session is gone")

// Session is the opaque browser automation capability.
type Session interface {
	// Start launches the underlying browser context.
	Start(ctx context.Context) error
	// Stop releases the underlying browser context.
	Stop(ctx context.Context) error
	// IsRunning reports whether the underlying process is alive.
	IsRunning() bool
	// RunCommand executes one driving command and returns its result.
	RunCommand(ctx context.Context, cmd string, args map[string]any) (any, error)
	// CurrentURL returns the current page URL.
	CurrentURL(ctx context.Context) (string, error)
	// PageSource returns the current page source.
	PageSource(ctx context.Context) (string, error)
	// Screenshot captures the current page as image bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Factory creates a started Session from a config.
type Factory func(ctx context.Context, cfg Config) (Session, error)

// Timeouts groups the driver-level wait settings.
type Timeouts struct {
	ImplicitWait time.Duration `json:"implicitWait" yaml:"implicit_wait"`
	PageLoad     time.Duration `json:"pageLoad" yaml:"page_load"`
	Script       time.Duration `json:"script" yaml:"script"`
}

// Config is the immutable session configuration value.
type Config struct {
	Version             string            `json:"version" yaml:"version"`
	Arguments           []string          `json:"arguments" yaml:"arguments"`
	Headless            bool              `json:"headless" yaml:"headless"`
	UserAgent           string            `json:"userAgent,omitempty" yaml:"user_agent"`
	Timeouts            Timeouts          `json:"timeouts" yaml:"timeouts"`
	Environment         map[string]string `json:"environment,omitempty" yaml:"environment"`
	ExperimentalOptions map[string]any    `json:"experimentalOptions,omitempty" yaml:"experimental_options"`
	VideoRecording      bool              `json:"videoRecording" yaml:"video_recording"`

	// ReconnectPerScript releases the underlying driver handle after every
	// script execution and reattaches on the next one. Off by default: the
	// handle is retained across scripts.
	ReconnectPerScript bool `json:"reconnectPerScript" yaml:"reconnect_per_script"`
}

// DefaultConfig returns the built-in session profile.
func DefaultConfig() Config {
	return Config{
		Version: "latest",
		Arguments: []string{
			"--window-size=1920,1080",
			"--lang=en,en-US",
			"--disable-translate",
		},
		Headless: true,
		Timeouts: Timeouts{
			ImplicitWait: 10 * time.Second,
			PageLoad:     30 * time.Second,
			Script:       30 * time.Second,
		},
		Environment:         map[string]string{},
		ExperimentalOptions: map[string]any{},
	}
}

// LoadProfile reads a session profile from a YAML file, layered over the
// built-in defaults. An empty path returns the defaults unchanged.
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read browser profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse browser profile: %w", err)
	}
	return cfg, nil
}
