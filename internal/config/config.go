// Package config provides unified configuration for all Tessera services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll     Mode = "all"
	ModeServe   Mode = "serve"
	ModeArchive Mode = "archive"
)

// Config holds the unified configuration for all Tessera services.
type Config struct {
	// Mode specifies which services to run: all, serve, archive
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Metrics listener configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Pruning service configuration
	Pruning PruningConfig `json:"pruning" yaml:"pruning"`

	// Snapshot archival configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds the graceful drain on shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// MetricsConfig holds the Prometheus metrics listener configuration.
type MetricsConfig struct {
	// Addr is the metrics listen address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether the metrics listener runs
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// CatalogConfig holds the shard catalog database configuration.
type CatalogConfig struct {
	// Path is the SQLite catalog database file; derived from DataDir
	// when empty
	Path string `json:"path" yaml:"path"`

	// ReadPoolSize is the maximum number of read-only SQLite connections
	ReadPoolSize int `json:"read_pool_size" yaml:"read_pool_size"`
}

// PruningConfig holds pruning service configuration.
type PruningConfig struct {
	// StatsWindow is how long idle per-table statistics are retained
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`

	// StatsExpireInterval is how often idle statistics are swept
	StatsExpireInterval time.Duration `json:"stats_expire_interval" yaml:"stats_expire_interval"`
}

// ArchiveConfig holds snapshot archival configuration.
type ArchiveConfig struct {
	// WorkDir is the directory for snapshot staging files
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// Interval is the time between periodic archive sweeps
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Compression selects the snapshot payload compression: none,
	// snappy, lz4
	Compression string `json:"compression" yaml:"compression"`

	// Concurrency is the number of tables archived in parallel (1-64)
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Prefix is the object key namespace for snapshot archives
	Prefix string `json:"prefix" yaml:"prefix"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Development switches to the human-readable console encoder
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/tessera",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Addr:    ":9091",
			Enabled: true,
		},
		Catalog: CatalogConfig{
			Path:         "",
			ReadPoolSize: 16,
		},
		Pruning: PruningConfig{
			StatsWindow:         time.Hour,
			StatsExpireInterval: 5 * time.Minute,
		},
		Archive: ArchiveConfig{
			WorkDir:     "",
			Interval:    15 * time.Minute,
			Compression: "snappy",
			Concurrency: 4,
			Prefix:      "snapshots",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tessera"
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	if c.Archive.WorkDir == "" {
		c.Archive.WorkDir = filepath.Join(c.DataDir, "archive")
	}
}

// CatalogPath returns the path to the shard catalog database.
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.DataDir, "catalog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeServe, ModeArchive:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, serve, or archive)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Archive.Compression {
	case "none", "snappy", "lz4":
		// Valid methods
	default:
		return fmt.Errorf("invalid archive compression: %s (must be none, snappy, or lz4)", c.Archive.Compression)
	}

	if c.Archive.Concurrency < 1 || c.Archive.Concurrency > 64 {
		return fmt.Errorf("archive.concurrency must be between 1 and 64, got %d", c.Archive.Concurrency)
	}

	if c.Catalog.ReadPoolSize < 1 {
		return fmt.Errorf("catalog.read_pool_size must be at least 1, got %d", c.Catalog.ReadPoolSize)
	}

	if c.Pruning.StatsWindow <= 0 {
		return fmt.Errorf("pruning.stats_window must be positive, got %s", c.Pruning.StatsWindow)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}

// ShouldRunServe returns true if the pruning server should run.
func (c *Config) ShouldRunServe() bool {
	return c.Mode == ModeAll || c.Mode == ModeServe
}

// ShouldRunArchive returns true if the snapshot archiver should run.
func (c *Config) ShouldRunArchive() bool {
	return c.Mode == ModeAll || c.Mode == ModeArchive
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
// Environment variables use the TESSERA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TESSERA_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("TESSERA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("TESSERA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// gRPC configuration
	if v := os.Getenv("TESSERA_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("TESSERA_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Metrics configuration
	if v := os.Getenv("TESSERA_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TESSERA_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}

	// Catalog configuration
	if v := os.Getenv("TESSERA_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("TESSERA_CATALOG_READ_POOL_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Catalog.ReadPoolSize)
	}

	// Pruning configuration
	if v := os.Getenv("TESSERA_PRUNING_STATS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pruning.StatsWindow = d
		}
	}

	// Archive configuration
	if v := os.Getenv("TESSERA_ARCHIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.Interval = d
		}
	}
	if v := os.Getenv("TESSERA_ARCHIVE_COMPRESSION"); v != "" {
		cfg.Archive.Compression = v
	}
	if v := os.Getenv("TESSERA_ARCHIVE_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Archive.Concurrency)
	}
	if v := os.Getenv("TESSERA_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}

	// Storage configuration
	if v := os.Getenv("TESSERA_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TESSERA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TESSERA_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("TESSERA_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("TESSERA_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Logging configuration
	if v := os.Getenv("TESSERA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TESSERA_LOG_DEVELOPMENT"); v != "" {
		cfg.Log.Development = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
		c.Archive.WorkDir,
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
