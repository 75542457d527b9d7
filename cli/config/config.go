// Package config loads sliderule.yaml configuration files.
package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPath is the config file read when --config is not given and the
// file exists in the working directory.
const DefaultPath = "sliderule.yaml"

// Config represents a sliderule.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	URL          string        `yaml:"url"`
	Organization string        `yaml:"organization"`
	Token        string        `yaml:"token"`
	Verbose      bool          `yaml:"verbose"`
	Retries      *int          `yaml:"retries,omitempty"`
	ChunkSize    int           `yaml:"chunk_size"`
	Timeout      TimeoutConfig `yaml:"timeout"`
	Storage      StorageConfig `yaml:"storage"`
	Adapter      AdapterConfig `yaml:"adapter"`
}

// TimeoutConfig holds the request timeout pair.
type TimeoutConfig struct {
	Connect Duration `yaml:"connect"`
	Read    Duration `yaml:"read"`
}

// StorageConfig holds record persistence defaults. An empty Backend
// disables persistence.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion notification defaults. An empty Type
// disables notification.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	PerAPI  bool              `yaml:"per_api,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Retries != nil && *c.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be >= 1, got %d", *c.Retries))
	}
	if c.Timeout.Connect.Duration < 0 || c.Timeout.Read.Duration < 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be >= 0, got %d", c.ChunkSize))
	}
	if c.Organization != "" && c.Token == "" {
		errs = append(errs, errors.New("organization requires a token"))
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q (want fs or s3)", c.Storage.Backend))
	}
	if c.Storage.Backend != "" && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when a backend is set"))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown adapter type %q (want webhook or redis)", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url is required when a type is set"))
	}
	return errors.Join(errs...)
}
