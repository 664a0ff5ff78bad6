package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Diagram  DiagramConfig  `yaml:"diagram"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
}

// DatabaseConfig holds the metadata store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchemaConfig points at the schema source
type SchemaConfig struct {
	// SnapshotPath is the YAML schema dump served by the snapshot provider.
	SnapshotPath string `yaml:"snapshot_path"`
}

// DiagramConfig holds the display and capacity options the engine honors
type DiagramConfig struct {
	// SelfReferences shows or hides A->A edges.
	SelfReferences bool `yaml:"self_references"`
	// ParallelEdgeFanOut lets the renderer spread parallel edges into a
	// fan. Fan-out indices are computed either way; when false the
	// renderer collapses each group to a single representative edge.
	ParallelEdgeFanOut bool `yaml:"parallel_edge_fan_out"`
	// LayoutDirection is one of lr, rl, tb, bt.
	LayoutDirection string `yaml:"layout_direction"`
	// MaxEntities caps how many entities one graph may hold (0 = unlimited).
	MaxEntities int `yaml:"max_entities"`
	// MaxLayoutNodes caps the auto-layout input (0 = unlimited).
	MaxLayoutNodes int `yaml:"max_layout_nodes"`
	// DefaultFieldMode is "none" or "all": the field projection applied
	// when an entity is added without an explicit choice.
	DefaultFieldMode string `yaml:"default_field_mode"`
}

// Validate rejects option values the engine cannot honor
func (c *Config) Validate() error {
	switch c.Diagram.LayoutDirection {
	case "lr", "rl", "tb", "bt":
	default:
		return fmt.Errorf("invalid layout_direction %q (want lr, rl, tb or bt)", c.Diagram.LayoutDirection)
	}
	switch c.Diagram.DefaultFieldMode {
	case "none", "all":
	default:
		return fmt.Errorf("invalid default_field_mode %q (want none or all)", c.Diagram.DefaultFieldMode)
	}
	if c.Diagram.MaxEntities < 0 {
		return fmt.Errorf("max_entities must not be negative")
	}
	if c.Diagram.MaxLayoutNodes < 0 {
		return fmt.Errorf("max_layout_nodes must not be negative")
	}
	return nil
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
