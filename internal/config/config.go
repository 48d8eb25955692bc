// Package config provides unified configuration for the NSDb core.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the NSDb core actors.
type Config struct {
	// NodeID identifies this node when the metadata coordinator assigns
	// Locations; a single-node deployment may leave it at its default.
	NodeID string `json:"node_id" yaml:"node_id"`

	// DataDir is the base directory for all data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Sharding configuration.
	Sharding ShardingConfig `json:"sharding" yaml:"sharding"`

	// Write scheduler configuration.
	WriteScheduler WriteSchedulerConfig `json:"write_scheduler" yaml:"write_scheduler"`

	// ReadCoordinator configuration.
	ReadCoordinator ReadCoordinatorConfig `json:"read_coordinator" yaml:"read_coordinator"`

	// HTTPEndpoint configuration (timeout only; no HTTP server is wired
	// in this module, but the coordinator protocol reuses the same
	// deadline knob a front-end would use for its own ask).
	HTTPEndpoint HTTPEndpointConfig `json:"http_endpoint" yaml:"http_endpoint"`

	// Metadata configuration.
	Metadata MetadataConfig `json:"metadata" yaml:"metadata"`

	// Storage configuration.
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// ShardingConfig holds the interval used to bucket timestamps into
// Locations.
type ShardingConfig struct {
	// Interval is the shard width; bucket k = floor(timestamp / Interval).
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// WriteSchedulerConfig holds the namespace data actor's flush cadence.
type WriteSchedulerConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// ReadCoordinatorConfig holds the read coordinator's per-ask deadline.
type ReadCoordinatorConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPEndpointConfig holds the timeout a front-end ask against the
// coordinators should use.
type HTTPEndpointConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// MetadataConfig holds metadata coordinator settings.
type MetadataConfig struct {
	// DedupeLocations names the choice of whether AddLocation rejects a
	// Location that overlaps one already registered for the same metric.
	// The default is false. The metadata coordinator does not read this
	// field: AddLocation never dedupes, whatever its value, and it is the
	// caller's responsibility to avoid requesting overlapping ranges.
	DedupeLocations bool `json:"dedupe_locations" yaml:"dedupe_locations"`

	// DBPath is the SQLite file backing durable metadata. Resolve
	// replaces an empty DBPath with DataDir/metadata.db.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		NodeID:  "node-1",
		DataDir: "./data/nsdb",
		Sharding: ShardingConfig{
			Interval: 24 * time.Hour,
		},
		WriteScheduler: WriteSchedulerConfig{
			Interval: 5 * time.Second,
		},
		ReadCoordinator: ReadCoordinatorConfig{
			Timeout: 10 * time.Second,
		},
		HTTPEndpoint: HTTPEndpointConfig{
			Timeout: 30 * time.Second,
		},
		Metadata: MetadataConfig{
			DedupeLocations: false,
			DBPath:          "",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
// A NodeID left unset gets a random one: a standalone instance doesn't
// need a stable identity across restarts, only a unique one within the
// process's lifetime for Location assignment.
func (c *Config) Resolve() {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.DataDir == "" {
		c.DataDir = "./data/nsdb"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Metadata.DBPath == "" {
		c.Metadata.DBPath = filepath.Join(c.DataDir, "metadata.db")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	if c.Sharding.Interval <= 0 {
		return fmt.Errorf("sharding.interval must be positive, got %s", c.Sharding.Interval)
	}
	if c.WriteScheduler.Interval <= 0 {
		return fmt.Errorf("write_scheduler.interval must be positive, got %s", c.WriteScheduler.Interval)
	}
	if c.ReadCoordinator.Timeout <= 0 {
		return fmt.Errorf("read_coordinator.timeout must be positive, got %s", c.ReadCoordinator.Timeout)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NSDB_ prefix. A .env file in the
// current directory, if present, is loaded first so local development
// doesn't need every variable exported in the shell.
func LoadFromEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("NSDB_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("NSDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NSDB_SHARDING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sharding.Interval = d
		}
	}
	if v := os.Getenv("NSDB_WRITE_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WriteScheduler.Interval = d
		}
	}
	if v := os.Getenv("NSDB_READ_COORDINATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadCoordinator.Timeout = d
		}
	}
	if v := os.Getenv("NSDB_HTTP_ENDPOINT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPEndpoint.Timeout = d
		}
	}
	if v := os.Getenv("NSDB_METADATA_DEDUPE_LOCATIONS"); v != "" {
		cfg.Metadata.DedupeLocations = v == "true" || v == "1"
	}
	if v := os.Getenv("NSDB_METADATA_DB_PATH"); v != "" {
		cfg.Metadata.DBPath = v
	}
	if v := os.Getenv("NSDB_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("NSDB_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("NSDB_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("NSDB_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("NSDB_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
