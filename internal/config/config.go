// Package config loads daemon and CLI settings from a YAML file with
// environment overrides, and can watch the file for live changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path"`

	// LogFile receives rotated structured logs; empty means stderr only.
	LogFile string `mapstructure:"log_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// StatusPort is the WebSocket status server port; 0 disables it.
	StatusPort int `mapstructure:"status_port"`

	// SyncInterval is how often the daemon syncs all calendars.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DBPath:       filepath.Join(stateDir(), "tasks.db"),
		LogFile:      filepath.Join(stateDir(), "caldav-tasks.log"),
		LogLevel:     "info",
		StatusPort:   0,
		SyncInterval: 5 * time.Minute,
	}
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(stateDir(), "config.yaml")
}

func stateDir() string {
	if dir := os.Getenv("CALDAV_TASKS_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".caldav-tasks"
	}
	return filepath.Join(home, ".caldav-tasks")
}

// Load reads the config file at path, merging it over defaults. A missing
// file is not an error; the defaults are returned. Environment variables
// prefixed CALDAV_TASKS_ override file values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CALDAV_TASKS")
	v.AutomaticEnv()

	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("status_port", cfg.StatusPort)
	v.SetDefault("sync_interval", cfg.SyncInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync_interval must be positive")
	}
	return cfg, nil
}
