package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// Load loads configuration from a file path and applies environment variable overrides.
// A missing file at the default path is not an error: defaults are used.
// Validation is deferred to allow CLI flag overrides to be applied first.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	path := configPath
	if path == "" {
		path = DefaultPath()
	}

	err := loadFromFile(path, cfg)
	switch {
	case errors.Is(err, ErrConfigFileNotFound) && configPath == "":
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	applyEnvironmentOverrides(cfg)

	return cfg, nil
}

// loadFromFile decodes a TOML file over cfg; keys absent from the file keep
// their current values
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigFileNotFound
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfigFormat, err)
	}
	for _, key := range md.Undecoded() {
		log.Warn().Str("key", key.String()).Str("path", path).Msg("unknown config key")
	}
	return nil
}

// applyEnvironmentOverrides applies configuration from TODOSYNC_* environment variables
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("TODOSYNC_REMOTE_URL"); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv("TODOSYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TODOSYNC_PULL_POLICY"); v != "" {
		cfg.PullPolicy = v
	}
	if v := os.Getenv("TODOSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TODOSYNC_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("TODOSYNC_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("TODOSYNC_KEEP_ACKNOWLEDGED"); v == "true" || v == "1" {
		cfg.KeepAcknowledged = true
	}
	setInt(&cfg.CallTimeoutSeconds, "TODOSYNC_CALL_TIMEOUT_SECONDS")
	setInt(&cfg.ProbeIntervalSeconds, "TODOSYNC_PROBE_INTERVAL_SECONDS")
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-integer env value")
		return
	}
	*dst = n
}

// Write encodes cfg as TOML to path, creating parent directories
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path unless a file already exists there
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w at %s", ErrConfigExists, path)
	}
	return Write(path, cfg)
}
