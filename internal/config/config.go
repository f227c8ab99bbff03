// Package config loads depot.yaml with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Package PackageConfig `yaml:"package"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`

	// DatabaseURL switches the local cache to PostgreSQL and enables scan history.
	DatabaseURL string `yaml:"database_url"`
	// ItemOrderPath overrides the bundled item order table.
	ItemOrderPath string `yaml:"item_order"`
	// MetricsFile is a node_exporter textfile written on exit.
	MetricsFile string `yaml:"metrics_file"`
}

type PackageConfig struct {
	BaseURL string `yaml:"base_url"` // CDN origin, may be empty
	Path    string `yaml:"path"`     // hashed asset path, e.g. assets/pkg/item.3f2a9c1b.zip
	Timeout string `yaml:"timeout"`
	MaxSize int64  `yaml:"max_size"`
}

type EngineConfig struct {
	Command     []string `yaml:"command"`
	ReadTimeout string   `yaml:"read_timeout"`
	Debug       bool     `yaml:"debug"`
}

type CacheConfig struct {
	Dir       string `yaml:"dir"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

func DefaultConfig() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return &Config{
		Package: PackageConfig{
			BaseURL: "https://arkn.lolicon.app",
			Path:    "assets/pkg/item.zip",
			Timeout: "2m",
			MaxSize: 64 * 1024 * 1024,
		},
		Engine: EngineConfig{
			Command:     []string{"node", "depot-recognition-worker.js"},
			ReadTimeout: "60s",
		},
		Cache: CacheConfig{
			Dir:       filepath.Join(cacheDir, "depotscan"),
			Namespace: "dr.pkg",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEPOT_CDN"); v != "" {
		c.Package.BaseURL = v
	}
	if v := os.Getenv("DEPOT_PACKAGE_PATH"); v != "" {
		c.Package.Path = v
	}
	if v := os.Getenv("DEPOT_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("DEPOT_ENGINE"); v != "" {
		c.Engine.Command = strings.Fields(v)
	}
	if v := os.Getenv("DEPOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// Database from environment, same variables the postgres image uses
	if c.DatabaseURL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			port := os.Getenv("POSTGRES_PORT")
			if port == "" {
				port = "5432"
			}
			c.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
				os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
		}
	}
}

func (c *Config) Validate() error {
	if c.Package.Path == "" {
		return fmt.Errorf("package.path is required")
	}
	if len(c.Engine.Command) == 0 {
		return fmt.Errorf("engine.command is required")
	}
	if c.Cache.Namespace == "" {
		return fmt.Errorf("cache.namespace is required")
	}
	if _, err := parseDuration(c.Package.Timeout); err != nil {
		return fmt.Errorf("invalid package.timeout: %w", err)
	}
	if _, err := parseDuration(c.Engine.ReadTimeout); err != nil {
		return fmt.Errorf("invalid engine.read_timeout: %w", err)
	}
	return nil
}

func (c *Config) PackageTimeout() time.Duration {
	d, _ := parseDuration(c.Package.Timeout)
	return d
}

func (c *Config) EngineReadTimeout() time.Duration {
	d, _ := parseDuration(c.Engine.ReadTimeout)
	return d
}

// parseDuration treats an empty string as "no timeout".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
