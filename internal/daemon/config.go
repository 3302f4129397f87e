// Package daemon holds the process configuration and the wiring that
// assembles the storage, services, and API server into a running daemon.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/droplog/droplog/internal/infra/supabase"
)

// Config is the full daemon configuration, loaded from
// ~/.droplog/config.toml with defaults for anything unset.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Remote  RemoteConfig  `toml:"remote"`
	Game    GameConfig    `toml:"game"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StorageConfig configures the local database.
type StorageConfig struct {
	// Path is the sqlite database file. "~" expands to the home directory.
	Path string `toml:"path"`
}

// RemoteConfig configures the Supabase backend. Sync stays disabled until
// both the project URL and key are set.
type RemoteConfig struct {
	Enabled    bool   `toml:"enabled"`
	ProjectURL string `toml:"project_url"`
	AnonKey    string `toml:"anon_key"`
}

// GameConfig configures gameplay defaults for fresh profiles.
type GameConfig struct {
	DailyGoal int `toml:"daily_goal"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8094,
			Metrics: true,
		},
		Storage: StorageConfig{
			Path: "~/.droplog/droplog.db",
		},
		Remote: RemoteConfig{
			Enabled: false,
		},
		Game: GameConfig{
			DailyGoal: 2000,
		},
	}
}

// ConfigPath returns the config file location, honoring DROPLOG_HOME.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Home returns the droplog data directory.
func Home() string {
	if h := os.Getenv("DROPLOG_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".droplog"
	}
	return filepath.Join(home, ".droplog")
}

// LoadConfig reads the config file, filling defaults for missing keys. A
// missing file is not an error; the defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Remote.Enabled && (c.Remote.ProjectURL == "" || c.Remote.AnonKey == "") {
		return fmt.Errorf("remote sync enabled but project_url or anon_key missing")
	}
	return nil
}

// DatabasePath expands the storage path and ensures its directory exists.
func (c *Config) DatabasePath() (string, error) {
	path := c.Storage.Path
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return path, nil
}

// SupabaseConfig converts the remote section into a client config.
func (c *Config) SupabaseConfig() supabase.Config {
	return supabase.Config{
		ProjectURL: c.Remote.ProjectURL,
		AnonKey:    c.Remote.AnonKey,
	}
}
