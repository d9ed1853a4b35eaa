// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Pool    PoolConfig
	Cache   CacheConfig
	Sandbox SandboxConfig
	Browser BrowserConfig
	Logging LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8070"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// PoolConfig holds session pool configuration.
type PoolConfig struct {
	IdleLimit     time.Duration `envconfig:"POOL_IDLE_LIMIT" default:"10m"`
	SweepInterval time.Duration `envconfig:"POOL_SWEEP_INTERVAL" default:"5m"`
	MaxRetries    int           `envconfig:"POOL_MAX_RETRIES" default:"100"`
	BackoffBase   float64       `envconfig:"POOL_BACKOFF_BASE" default:"1.5"`
	MaxBackoff    time.Duration `envconfig:"POOL_MAX_BACKOFF" default:"5m"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	DefaultTTL    time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	MaxSize       int           `envconfig:"CACHE_MAX_SIZE" default:"10000"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1h"`
	Dir           string        `envconfig:"CACHE_DIR" default:"./cache"`
	MaxFileBytes  int64         `envconfig:"CACHE_MAX_FILE_BYTES" default:"8388608"`
	Persistence   bool          `envconfig:"CACHE_PERSISTENCE" default:"true"`
}

// SandboxConfig holds script execution configuration.
type SandboxConfig struct {
	DefaultTimeout   time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"60s"`
	MaxConcurrent    int           `envconfig:"SCRIPT_MAX_CONCURRENT" default:"8"`
	RecordingEnabled bool          `envconfig:"RECORDING_ENABLED" default:"false"`
	RecordingGrace   time.Duration `envconfig:"RECORDING_GRACE" default:"6m"`
	RecorderURL      string        `envconfig:"RECORDER_URL" default:""`
}

// BrowserConfig holds browser session backend configuration.
type BrowserConfig struct {
	RemoteURL   string `envconfig:"BROWSER_REMOTE_URL" default:"http://localhost:4444"`
	ProfilePath string `envconfig:"BROWSER_PROFILE" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8070",
			Host: "0.0.0.0",
		},
		Pool: PoolConfig{
			IdleLimit:     10 * time.Minute,
			SweepInterval: 5 * time.Minute,
			MaxRetries:    100,
			BackoffBase:   1.5,
			MaxBackoff:    5 * time.Minute,
		},
		Cache: CacheConfig{
			DefaultTTL:    time.Hour,
			MaxSize:       10000,
			SweepInterval: time.Hour,
			Dir:           "./cache",
			MaxFileBytes:  8 << 20,
			Persistence:   true,
		},
		Sandbox: SandboxConfig{
			DefaultTimeout: 60 * time.Second,
			MaxConcurrent:  8,
			RecordingGrace: 6 * time.Minute,
		},
		Browser: BrowserConfig{
			RemoteURL: "http://localhost:4444",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
