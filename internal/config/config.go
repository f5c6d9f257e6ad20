// Package config loads and watches fieldsync configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, the YAML config file, and FIELDSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the config directory.
const DefaultFileName = "fieldsync.yaml"

// Config is the resolved configuration for one fieldsync instance.
type Config struct {
	// ServerURL is the base URL of the backend API, including the /api
	// prefix if the deployment uses one.
	ServerURL string `mapstructure:"server_url"`

	// APIToken is the bearer token for the signed-in rep.
	APIToken string `mapstructure:"api_token"`

	// UserID scopes store pulls and schedule creation to this rep.
	UserID int64 `mapstructure:"user_id"`

	// DBPath is the SQLite cache location. Defaults next to the config
	// file.
	DBPath string `mapstructure:"db_path"`

	// SyncInterval is the autosync cadence. Zero means the engine default.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ProbeURL is the endpoint the connectivity probe hits. Defaults to
	// ServerURL when empty.
	ProbeURL string `mapstructure:"probe_url"`

	// DashboardAddr is the listen address for the status dashboard.
	// Empty disables it.
	DashboardAddr string `mapstructure:"dashboard_addr"`

	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// Validate checks the fields every mode of operation needs.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Loader owns the viper instance so the config file can be re-read on
// change.
type Loader struct {
	v   *viper.Viper
	dir string
}

// DefaultDir returns the per-user config directory, ~/.fieldsync.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".fieldsync"), nil
}

// NewLoader prepares a loader rooted at dir. An empty dir means DefaultDir.
func NewLoader(dir string) (*Loader, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, DefaultFileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", filepath.Join(dir, "fieldsync.db"))
	v.SetDefault("sync_interval", "30s")
	v.SetDefault("probe_interval", "10s")
	v.SetDefault("log_file", filepath.Join(dir, "fieldsync.log"))
	v.SetDefault("log_level", "info")

	return &Loader{v: v, dir: dir}, nil
}

// Dir returns the config directory this loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads the config file and resolves the final configuration. A
// missing file is not an error; defaults and environment variables still
// apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the config file whenever it changes on disk and hands the
// fresh Config to onChange. Malformed edits are ignored until the file
// parses again.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// WriteDefault creates the config directory and writes a starter config
// file. It refuses to overwrite an existing file.
func WriteDefault(dir string, cfg *Config) (string, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists: %s", path)
	}

	out := map[string]any{
		"server_url":     cfg.ServerURL,
		"api_token":      cfg.APIToken,
		"user_id":        cfg.UserID,
		"db_path":        cfg.DBPath,
		"sync_interval":  orDefault(cfg.SyncInterval, 30*time.Second).String(),
		"probe_interval": orDefault(cfg.ProbeInterval, 10*time.Second).String(),
		"log_level":      "info",
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
