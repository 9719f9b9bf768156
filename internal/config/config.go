// Package config loads the application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no path is provided via flag or environment.
const DefaultConfigPath = "config.yaml"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig holds token signing settings. The secret is passed explicitly
// into the credential codec at construction time.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	LoginExpiresIn  string `yaml:"login-expires-in"`
	CreateExpiresIn string `yaml:"create-expires-in"`
}

// AdminConfig seeds the initial account on first migration.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// ResolveConfigPath picks the config path from the argument, the CARDCOUNT_CONFIG
// environment variable, or the default, in that order.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("CARDCOUNT_CONFIG")); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and parses the configuration file, applying defaults for
// omitted fields.
func Load(path string) (AppConfig, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// defaults returns the built-in configuration.
func defaults() AppConfig {
	cfg := AppConfig{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-valued fields with built-in defaults.
func applyDefaults(cfg *AppConfig) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":5000"
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = "data/card-count.db"
	}
	if strings.TrimSpace(cfg.JWT.LoginExpiresIn) == "" {
		cfg.JWT.LoginExpiresIn = "7d"
	}
	if strings.TrimSpace(cfg.JWT.CreateExpiresIn) == "" {
		cfg.JWT.CreateExpiresIn = "99y"
	}
	if strings.TrimSpace(cfg.Admin.Username) == "" {
		cfg.Admin.Username = "admin"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 30
	}
}
