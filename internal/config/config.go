package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Trash    TrashConfig    `yaml:"trash"`
	Sync     SyncConfig     `yaml:"sync"`
	Backups  BackupsConfig  `yaml:"backups"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP API server settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"` // generous: bulk deploys answer inline
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig contains sqlite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TrashConfig contains catalog source and cache settings
type TrashConfig struct {
	Owner       string `yaml:"owner"`        // GitHub repository owner
	Repo        string `yaml:"repo"`         // GitHub repository name
	Branch      string `yaml:"branch"`       // branch whose HEAD "latest" resolves to
	GitHubToken string `yaml:"github_token"` // optional, raises the API rate limit
	CachePath   string `yaml:"cache_path"`   // bbolt snapshot cache file

	// QualityOrder declares how the catalog's profile blueprints rank
	// qualities: top_first (best quality listed first) or bottom_first.
	QualityOrder string `yaml:"quality_order"`
}

// SyncConfig contains auto-sync worker settings
type SyncConfig struct {
	AutoInterval time.Duration `yaml:"auto_interval"` // how often the auto-sync sweep runs
}

// BackupsConfig contains pre-deployment backup retention settings
type BackupsConfig struct {
	TTL             time.Duration `yaml:"ttl"`              // delete backups older than this (0 = keep forever)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // how often expired backups are purged
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to scrape (empty = allow all)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/arrdash/arrdash.db"
	}

	if c.Trash.Owner == "" {
		c.Trash.Owner = "TRaSH-Guides"
	}
	if c.Trash.Repo == "" {
		c.Trash.Repo = "Guides"
	}
	if c.Trash.Branch == "" {
		c.Trash.Branch = "master"
	}
	if c.Trash.CachePath == "" {
		c.Trash.CachePath = "/var/lib/arrdash/trash.db"
	}
	if c.Trash.QualityOrder == "" {
		c.Trash.QualityOrder = "top_first"
	}

	if c.Sync.AutoInterval == 0 {
		c.Sync.AutoInterval = 6 * time.Hour
	}

	// Backups.TTL keeps its zero value: backups live forever unless a
	// retention window is configured.
	if c.Backups.CleanupInterval == 0 {
		c.Backups.CleanupInterval = time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	validOrders := map[string]bool{"top_first": true, "bottom_first": true}
	if !validOrders[c.Trash.QualityOrder] {
		return fmt.Errorf("invalid trash.quality_order: %s (must be top_first or bottom_first)", c.Trash.QualityOrder)
	}

	if c.Sync.AutoInterval < time.Minute {
		return fmt.Errorf("sync.auto_interval must be at least 1m, got %s", c.Sync.AutoInterval)
	}
	if c.Backups.CleanupInterval < time.Minute {
		return fmt.Errorf("backups.cleanup_interval must be at least 1m, got %s", c.Backups.CleanupInterval)
	}
	if c.Backups.TTL < 0 {
		return fmt.Errorf("backups.ttl must not be negative, got %s", c.Backups.TTL)
	}

	return nil
}
