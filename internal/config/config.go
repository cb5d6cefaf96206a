// Package config handles environment settings and the XDG configuration
// directory.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "taskdeck"

	// SessionFile is the stored auth session filename.
	SessionFile = "session.json"

	// EnvRemoteURL names the remote store base URL variable.
	EnvRemoteURL = "TASKDECK_REMOTE_URL"

	// EnvAnonKey names the remote store anonymous API key variable.
	EnvAnonKey = "TASKDECK_ANON_KEY"

	// EnvDBPath names the local database path variable, used when no
	// remote URL is configured.
	EnvDBPath = "TASKDECK_DB"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// RemoteURL is the hosted backend base URL. Empty selects the local
	// SQLite backend.
	RemoteURL string

	// AnonKey is the anonymous API key for the hosted backend.
	AnonKey string

	// DBPath is the local database file, used when RemoteURL is empty.
	DBPath string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool
}

// New creates a Config from the environment. If configDir is empty, uses
// XDG_CONFIG_HOME/taskdeck or $HOME/.config/taskdeck.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}

	cfg := &Config{
		Dir:       dir,
		RemoteURL: os.Getenv(EnvRemoteURL),
		AnonKey:   os.Getenv(EnvAnonKey),
		DBPath:    os.Getenv(EnvDBPath),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(dir, "taskdeck.db")
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// SessionPath returns the path to the stored auth session file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasRemote reports whether a hosted backend is configured.
func (c *Config) HasRemote() bool {
	return c.RemoteURL != ""
}

// HasSession checks if a saved session file exists.
func (c *Config) HasSession() bool {
	_, err := os.Stat(c.SessionPath())
	return err == nil
}

// RemoveSession deletes the session file.
func (c *Config) RemoveSession() error {
	return os.Remove(c.SessionPath())
}
