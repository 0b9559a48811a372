// Package config holds the sync client's configuration.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for the todosync client
type Config struct {
	RemoteURL            string `toml:"remote_url"`
	DBPath               string `toml:"db_path"`
	CallTimeoutSeconds   int    `toml:"call_timeout_seconds"`
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds"`
	PullPolicy           string `toml:"pull_policy"` // "last-pull-wins" (default) or "skip-pending"
	KeepAcknowledged     bool   `toml:"keep_acknowledged"`
	LogLevel             string `toml:"log_level"`
	LogFile              string `toml:"log_file,omitempty"`
	Env                  string `toml:"env"` // "dev" enables console logging
}

// DefaultDir is where the config file and local database live by default
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "todosync")
	}
	return ".todosync"
}

// DefaultPath is the default config file location
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

// DefaultConfig returns a configuration pointing at a local server
func DefaultConfig() *Config {
	return &Config{
		RemoteURL:            "http://localhost:3000",
		DBPath:               filepath.Join(DefaultDir(), "todos.db"),
		CallTimeoutSeconds:   10,
		ProbeIntervalSeconds: 5,
		PullPolicy:           "last-pull-wins",
		LogLevel:             "info",
		Env:                  "dev",
	}
}

// CallTimeout bounds every remote call made by the sync engine
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// ProbeInterval is the connectivity probe period
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RemoteURL == "" {
		return ErrMissingRemoteURL
	}
	u, err := url.Parse(c.RemoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidRemoteURL
	}

	if c.DBPath == "" {
		return ErrMissingDBPath
	}

	if c.CallTimeoutSeconds <= 0 || c.ProbeIntervalSeconds <= 0 {
		return ErrInvalidTimeout
	}

	switch c.PullPolicy {
	case "", "last-pull-wins", "skip-pending":
	default:
		return ErrInvalidPullPolicy
	}

	return nil
}
