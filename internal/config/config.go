// ABOUTME: Configuration loading and parsing for fold-relay
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete fold-relay configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Poll       PollConfig       `yaml:"poll" toml:"poll"`
	Safeguards SafeguardsConfig `yaml:"safeguards" toml:"safeguards"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// PollConfig holds the consumer polling cadence.
type PollConfig struct {
	Interval time.Duration `yaml:"-" toml:"-"`

	// Raw string value for file unmarshaling
	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// SafeguardsConfig tunes the data-loss checks.
type SafeguardsConfig struct {
	// MaxLossFraction is the snapshot-diff threshold; zero means the
	// built-in default of 0.80.
	MaxLossFraction float64 `yaml:"max_loss_fraction" toml:"max_loss_fraction"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) parseDurations() error {
	if c.Poll.IntervalRaw != "" {
		d, err := time.ParseDuration(c.Poll.IntervalRaw)
		if err != nil {
			return fmt.Errorf("poll.interval: %w", err)
		}
		c.Poll.Interval = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if c.Safeguards.MaxLossFraction < 0 || c.Safeguards.MaxLossFraction > 1 {
		return fmt.Errorf("safeguards.max_loss_fraction must be between 0 and 1")
	}
	return nil
}

func defaultDatabasePath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "share", "fold-relay", "relay.db")
	}
	return "relay.db"
}
