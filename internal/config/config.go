// Package config provides configuration management for Schemascope.
//
// Config file locations (priority order):
//  1. $SCHEMASCOPE_CONFIG
//  2. ./schemascope.yaml
//  3. ~/.config/schemascope/config.yaml
//  4. /etc/schemascope/config.yaml
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Server:   ServerConfig{Addr: ":3000"},
		Database: DatabaseConfig{Path: "./schemascope.db"},
		Diagram: DiagramConfig{
			SelfReferences:     true,
			ParallelEdgeFanOut: true,
			LayoutDirection:    "lr",
			MaxEntities:        200,
			MaxLayoutNodes:     500,
			DefaultFieldMode:   "none",
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./schemascope.db"
	}
	if c.Diagram.LayoutDirection == "" {
		c.Diagram.LayoutDirection = "lr"
	}
	if c.Diagram.DefaultFieldMode == "" {
		c.Diagram.DefaultFieldMode = "none"
	}
	if c.Diagram.MaxEntities == 0 {
		c.Diagram.MaxEntities = 200
	}
	if c.Diagram.MaxLayoutNodes == 0 {
		c.Diagram.MaxLayoutNodes = 500
	}
}
