package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all caselake configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Fetch configures the bulk-file downloader.
	Fetch FetchConfig `yaml:"fetch"`

	// Bronze configures raw ingestion.
	Bronze BronzeConfig `yaml:"bronze"`

	// Silver configures ML-prep processing.
	Silver SilverConfig `yaml:"silver"`

	// Catalog configures the run/shard catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// FetchConfig configures the HTTP downloader.
type FetchConfig struct {
	Timeout    string `yaml:"timeout"`     // per-request timeout
	MaxRetries int    `yaml:"max_retries"` // reconnect attempts per download
	UserAgent  string `yaml:"user_agent"`
}

// BronzeConfig configures the bronze (raw ingest) layer.
type BronzeConfig struct {
	RowsPerShard int `yaml:"rows_per_shard"`
	BlockMB      int `yaml:"block_mb"` // CSV read block size (MiB)

	// Columns projected out of the upstream dump. Order is the shard
	// column order.
	Columns []string `yaml:"columns"`
}

// SilverConfig configures the silver (ML-prep) layer.
type SilverConfig struct {
	MinTextLen   int   `yaml:"min_text_len"` // drop rows with shorter plain text
	SampleSeed   int64 `yaml:"sample_seed"`
	RowsPerShard int   `yaml:"rows_per_shard"`
}

// CatalogConfig configures the SQLite catalog.
type CatalogConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "caselake",
		Version: "0.3.0",

		Fetch: FetchConfig{
			Timeout:    "60s",
			MaxRetries: 5,
			UserAgent:  "caselake/0.3",
		},

		Bronze: BronzeConfig{
			RowsPerShard: 2_000_000,
			BlockMB:      128,
			Columns:      []string{"id", "type", "author_id", "plain_text"},
		},

		Silver: SilverConfig{
			MinTextLen:   100,
			SampleSeed:   42,
			RowsPerShard: 2_000_000,
		},

		Catalog: CatalogConfig{
			DatabasePath: "data/caselake.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CASELAKE_DB"); path != "" {
		c.Catalog.DatabasePath = path
	}
	if t := os.Getenv("CASELAKE_HTTP_TIMEOUT"); t != "" {
		c.Fetch.Timeout = t
	}
	if ua := os.Getenv("CASELAKE_USER_AGENT"); ua != "" {
		c.Fetch.UserAgent = ua
	}
	if n := os.Getenv("CASELAKE_ROWS_PER_SHARD"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.Bronze.RowsPerShard = v
		}
	}
}

// GetFetchTimeout returns the fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bronze.RowsPerShard <= 0 {
		return fmt.Errorf("bronze.rows_per_shard must be positive, got %d", c.Bronze.RowsPerShard)
	}
	if c.Bronze.BlockMB <= 0 {
		return fmt.Errorf("bronze.block_mb must be positive, got %d", c.Bronze.BlockMB)
	}
	if len(c.Bronze.Columns) == 0 {
		return fmt.Errorf("bronze.columns must not be empty")
	}
	if c.Catalog.DatabasePath == "" {
		return fmt.Errorf("catalog.database_path must be set")
	}
	return nil
}
