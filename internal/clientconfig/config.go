// Package clientconfig loads the desktop client's TOML configuration.
package clientconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// AppName is the directory name under the user config dir.
	AppName = "timetrack"
	// ConfigFile is the name of the TOML configuration file.
	ConfigFile = "config.toml"
	// TokenFile holds the saved API credential.
	TokenFile = "token"
	// SnapshotFile holds the last synced state for cold starts.
	SnapshotFile = "snapshot.json"
)

// Config represents the client configuration.
type Config struct {
	// ServerURL is the base URL of the backend, e.g. "http://localhost:8080"
	ServerURL string `toml:"server_url"`
	// IdleTimeoutSeconds stops a running timer after this much inactivity.
	// Zero disables local idle detection.
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
	// ResyncSeconds is how often the client re-checks the server while
	// connected. Drift in the displayed elapsed time never outlives this.
	ResyncSeconds int `toml:"resync_seconds"`
}

func DefaultConfig() Config {
	return Config{
		ServerURL:          "http://localhost:8080",
		IdleTimeoutSeconds: 600,
		ResyncSeconds:      30,
	}
}

// Dir returns the client's config directory, creating it if needed.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	appDir := filepath.Join(configDir, AppName)
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		return "", err
	}
	return appDir, nil
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. Unset fields keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	if c.IdleTimeoutSeconds < 0 {
		return errors.New("idle_timeout_seconds must not be negative")
	}
	if c.ResyncSeconds <= 0 {
		return errors.New("resync_seconds must be positive")
	}
	return nil
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncSeconds) * time.Second
}
