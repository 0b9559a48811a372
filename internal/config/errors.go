package config

import "errors"

var (
	// ErrMissingRemoteURL indicates that the remote endpoint is not configured
	ErrMissingRemoteURL = errors.New("remote_url is required in configuration")

	// ErrInvalidRemoteURL indicates that remote_url is not an absolute http(s) URL
	ErrInvalidRemoteURL = errors.New("remote_url must be an absolute http or https URL")

	// ErrMissingDBPath indicates that the local database path is not configured
	ErrMissingDBPath = errors.New("db_path is required in configuration")

	// ErrInvalidTimeout indicates a non-positive call timeout or probe interval
	ErrInvalidTimeout = errors.New("call_timeout_seconds and probe_interval_seconds must be positive")

	// ErrInvalidPullPolicy indicates an unknown pull_policy value
	ErrInvalidPullPolicy = errors.New("pull_policy must be last-pull-wins or skip-pending")

	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file is not valid TOML
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")

	// ErrConfigExists is returned by Init when the file is already present
	ErrConfigExists = errors.New("configuration file already exists")
)
