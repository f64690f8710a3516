// Package config handles configuration loading and validation for
// ibus-bugtest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"ibus-bugtest/internal/engine"
	"ibus-bugtest/internal/logging"
)

// Config is the complete engine configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine" json:"engine" yaml:"engine"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// EngineConfig controls the engine and how it meets the bus.
type EngineConfig struct {
	// TriggerKey is a single character ("x") or a keysym ("0x78").
	TriggerKey string `toml:"trigger_key" json:"trigger_key" yaml:"trigger_key"`

	// EngineName is the name CreateEngine accepts.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// ComponentName is the bus name owned when launched by ibus-daemon.
	ComponentName string `toml:"component_name" json:"component_name" yaml:"component_name"`

	// BusAddress overrides IBus address discovery.
	BusAddress string `toml:"bus_address" json:"bus_address" yaml:"bus_address"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string   `toml:"level" json:"level" yaml:"level"`
	Format     string   `toml:"format" json:"format" yaml:"format"`
	Output     string   `toml:"output" json:"output" yaml:"output"`
	FilePath   string   `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	RedactKeys []string `toml:"redact_keys" json:"redact_keys" yaml:"redact_keys"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			TriggerKey:    "x",
			EngineName:    "bugtest",
			ComponentName: "org.freedesktop.IBus.Bugtest",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with BUGTEST_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BUGTEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BUGTEST_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("BUGTEST_TRIGGER_KEY"); v != "" {
		c.Engine.TriggerKey = v
	}
	if v := os.Getenv("BUGTEST_BUS_ADDRESS"); v != "" {
		c.Engine.BusAddress = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Logging.RedactKeys = append([]string(nil), c.Logging.RedactKeys...)
	return &clone
}

// TriggerKeyval returns the keysym of Engine.TriggerKey.
func (c *Config) TriggerKeyval() (uint32, error) {
	return ParseTriggerKey(c.Engine.TriggerKey)
}

// ParseTriggerKey accepts a single printable character or a keysym written
// in hex ("0x78") or decimal.
func ParseTriggerKey(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("trigger key is empty")
	}

	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		if kv := engine.RuneToKeyval(r); kv != 0 {
			return kv, nil
		}
		return 0, fmt.Errorf("trigger key %q has no keysym", s)
	}

	v, err := strconv.ParseUint(strings.ToLower(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("trigger key %q: not a character or keysym", s)
	}
	if v == 0 {
		return 0, fmt.Errorf("trigger key %q: keysym 0 is reserved", s)
	}
	return uint32(v), nil
}

// LoggerConfig converts the logging section into a logging.Config.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = c.Logging.Output
	cfg.FilePath = c.Logging.FilePath
	cfg.MaxSize = int64(c.Logging.MaxSizeMB)
	cfg.MaxBackups = c.Logging.MaxBackups
	cfg.RedactKeys = append([]string(nil), c.Logging.RedactKeys...)
	return cfg, nil
}
