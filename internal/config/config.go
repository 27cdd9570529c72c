// Package config loads pocketdev settings from POCKETDEV_* environment
// variables, with command-line flags layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "POCKETDEV"

// Config holds all settings for the dev-box server.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Storage   StorageConfig
	Log       LogConfig
	RateLimit RateLimitConfig `split_words:"true"`
	Tunnel    TunnelConfig
}

// ServerConfig holds HTTP listener settings. The API runs commands without
// authentication, so it listens on loopback unless told otherwise; remote
// clients come in through the gateway tunnel.
type ServerConfig struct {
	Host            string        `default:"127.0.0.1"`
	Port            int           `default:"8800"`
	ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
}

// TerminalConfig holds session and command execution settings.
type TerminalConfig struct {
	Shell        string        `default:"/bin/sh"`
	JoinTimeout  time.Duration `split_words:"true" default:"1s"`
	MaxLineBytes int           `split_words:"true" default:"1048576"`
	ReplayLines  int           `split_words:"true" default:"1000"`
	MaxSessions  int           `split_words:"true" default:"0"`
	TTY          bool          `default:"false"`

	// WatchDebounce is the quiet period for working copy change notifications.
	WatchDebounce time.Duration `split_words:"true" default:"500ms"`
}

// StorageConfig locates the sqlite database.
type StorageConfig struct {
	// DataDir defaults to ~/.pocketdev when empty.
	DataDir string `split_words:"true"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `default:"info"`
	Development bool   `default:"false"`
}

// RateLimitConfig holds per-client API rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"50"`
	Burst             int  `default:"100"`
	Enabled           bool `default:"true"`
}

// TunnelConfig points the server at a gateway. Empty URL disables the tunnel.
type TunnelConfig struct {
	GatewayURL string `split_words:"true"`
	Secret     string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8800,
			ShutdownTimeout: 5 * time.Second,
		},
		Terminal: TerminalConfig{
			Shell:         "/bin/sh",
			JoinTimeout:   time.Second,
			MaxLineBytes:  1024 * 1024,
			ReplayLines:   1000,
			WatchDebounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}

// Addr is the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DataDir resolves the data directory and creates it if needed.
func (c *Config) DataDir() (string, error) {
	dir := c.Storage.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".pocketdev")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}
