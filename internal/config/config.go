// Package config loads and validates the integrator's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Zero values are filled in by
// ApplyDefaults; Validate rejects what defaults cannot save.
type Config struct {
	// ApplicationName identifies this process in entity provenance.
	// Edits authored under this name are recognized as the integrator's
	// own and skipped.
	ApplicationName string `yaml:"application_name"`

	// Tolerance is the coincidence distance in metres used by every
	// geometric and spatial check.
	Tolerance float64 `yaml:"tolerance"`

	Database Database `yaml:"database"`
	Poll     Poll     `yaml:"poll"`
	Events   Events   `yaml:"events"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Database configures the Postgres connection.
type Database struct {
	// DSN is a lib/pq connection string. The PGDSN environment variable
	// overrides it so credentials stay out of config files.
	DSN string `yaml:"dsn"`

	// SRID is the spatial reference of the route network tables.
	SRID int `yaml:"srid"`
}

// Poll configures the edit-log poller.
type Poll struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// Events configures the message-bus producer.
type Events struct {
	// NATSURL is the broker address. The NATS_URL environment variable
	// overrides it.
	NATSURL string `yaml:"nats_url"`

	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Metrics configures the Prometheus listener. An empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// alone, for deployments that pass no config file.
func FromEnv() (*Config, error) {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.ApplicationName == "" {
		c.ApplicationName = "GDB_INTEGRATOR"
	}
	if c.Tolerance == 0 {
		c.Tolerance = 0.01
	}
	if c.Database.SRID == 0 {
		c.Database.SRID = 25832
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 250 * time.Millisecond
	}
	if c.Poll.BatchSize == 0 {
		c.Poll.BatchSize = 500
	}
	if c.Events.Stream == "" {
		c.Events.Stream = "route-network-events"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "route.network"
	}
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv("PGDSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.Events.NATSURL = url
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set PGDSN)")
	}
	if c.Events.NATSURL == "" {
		return fmt.Errorf("events.nats_url is required (or set NATS_URL)")
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", c.Tolerance)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	return nil
}
