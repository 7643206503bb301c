// Package config provides unified configuration for the gharvest pipeline.
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

// Stage represents the pipeline stage to run.
type Stage string

const (
	StageAll      Stage = "all"
	StageDownload Stage = "download"
	StageBronze   Stage = "bronze"
	StageSilver   Stage = "silver"
	StageGold     Stage = "gold"
	StagePublish  Stage = "publish"
)

// Config holds the unified configuration for all pipeline stages.
type Config struct {
	// Stage selects which stages to run: all, download, bronze, silver, gold, publish
	Stage Stage `json:"stage" yaml:"stage"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Archive configuration (download stage)
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Bronze stage configuration
	Bronze BronzeConfig `json:"bronze" yaml:"bronze"`

	// Silver stage configuration
	Silver SilverConfig `json:"silver" yaml:"silver"`

	// Gold stage configuration
	Gold GoldConfig `json:"gold" yaml:"gold"`

	// Storage configuration (publish stage)
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// ArchiveConfig holds archive source configuration.
type ArchiveConfig struct {
	// BaseURL is the archive endpoint serving hourly event files
	BaseURL string `json:"base_url" yaml:"base_url"`

	// StartDate is the first date to download (YYYY-MM-DD)
	StartDate string `json:"start_date" yaml:"start_date"`

	// EndDate is the last date to download, inclusive (YYYY-MM-DD)
	EndDate string `json:"end_date" yaml:"end_date"`

	// Workers is the number of parallel downloads
	Workers int `json:"workers" yaml:"workers"`

	// RetryAttempts is the number of retries per file
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelay is the initial backoff between retries
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// Timeout is the per-request HTTP timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// BronzeConfig holds Bronze builder configuration.
type BronzeConfig struct {
	// BatchSize is the number of records buffered per insert batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Workers is the number of archive files processed in parallel
	Workers int `json:"workers" yaml:"workers"`

	// ForceCSV writes delimited text instead of SQLite partitions
	ForceCSV bool `json:"force_csv" yaml:"force_csv"`
}

// SilverConfig holds Silver builder configuration.
type SilverConfig struct {
	// Workers is the number of Bronze files processed in parallel
	Workers int `json:"workers" yaml:"workers"`

	// ForceCSV writes delimited text instead of SQLite partitions
	ForceCSV bool `json:"force_csv" yaml:"force_csv"`
}

// GoldConfig holds Gold aggregator configuration.
type GoldConfig struct {
	// StartDate restricts the Silver partitions read (YYYY-MM-DD, optional)
	StartDate string `json:"start_date" yaml:"start_date"`

	// EndDate restricts the Silver partitions read (YYYY-MM-DD, optional)
	EndDate string `json:"end_date" yaml:"end_date"`

	// TopN is the size of the ranking tables
	TopN int `json:"top_n" yaml:"top_n"`

	// ForceCSV writes delimited text instead of SQLite partitions
	ForceCSV bool `json:"force_csv" yaml:"force_csv"`
}

// StorageConfig holds object storage configuration for the publish stage.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is the object key prefix for uploaded trees
	Prefix string `json:"prefix" yaml:"prefix"`

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

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Stage:   StageAll,
		DataDir: "./data",
		Archive: ArchiveConfig{
			BaseURL:       "https://data.gharchive.org",
			Workers:       5,
			RetryAttempts: 3,
			RetryDelay:    5 * time.Second,
			Timeout:       2 * time.Minute,
		},
		Bronze: BronzeConfig{
			BatchSize: 10000,
			Workers:   5,
		},
		Silver: SilverConfig{
			Workers: 4,
		},
		Gold: GoldConfig{
			TopN: 1000,
		},
		Storage: StorageConfig{
			Type:   "local",
			Prefix: "github-archive",
		},
	}
}

// RawDir returns the directory holding downloaded archive files.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// BronzeDir returns the Bronze layer output directory.
func (c *Config) BronzeDir() string { return filepath.Join(c.DataDir, "bronze") }

// SilverDir returns the Silver layer output directory.
func (c *Config) SilverDir() string { return filepath.Join(c.DataDir, "silver") }

// GoldDir returns the Gold layer output directory.
func (c *Config) GoldDir() string { return filepath.Join(c.DataDir, "gold") }

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "published")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Stage {
	case StageAll, StageDownload, StageBronze, StageSilver, StageGold, StagePublish:
		// Valid stages
	default:
		return fmt.Errorf("invalid stage: %s (must be all, download, bronze, silver, gold, or publish)", c.Stage)
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

	if c.Bronze.BatchSize < 1 {
		return fmt.Errorf("bronze.batch_size must be positive, got %d", c.Bronze.BatchSize)
	}

	if c.Gold.TopN < 1 {
		return fmt.Errorf("gold.top_n must be positive, got %d", c.Gold.TopN)
	}

	for _, d := range []struct{ name, val string }{
		{"archive.start_date", c.Archive.StartDate},
		{"archive.end_date", c.Archive.EndDate},
		{"gold.start_date", c.Gold.StartDate},
		{"gold.end_date", c.Gold.EndDate},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d.val); err != nil {
			return fmt.Errorf("%s: invalid date %q (want YYYY-MM-DD)", d.name, d.val)
		}
	}

	return nil
}

// ShouldRun reports whether the given stage is selected.
func (c *Config) ShouldRun(stage Stage) bool {
	return c.Stage == StageAll || c.Stage == stage
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
// Environment variables use the GHARVEST_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GHARVEST_STAGE"); v != "" {
		cfg.Stage = Stage(v)
	}
	if v := os.Getenv("GHARVEST_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Archive configuration
	if v := os.Getenv("GHARVEST_ARCHIVE_BASE_URL"); v != "" {
		cfg.Archive.BaseURL = v
	}
	if v := os.Getenv("GHARVEST_ARCHIVE_START_DATE"); v != "" {
		cfg.Archive.StartDate = v
	}
	if v := os.Getenv("GHARVEST_ARCHIVE_END_DATE"); v != "" {
		cfg.Archive.EndDate = v
	}
	if v := os.Getenv("GHARVEST_ARCHIVE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Archive.Workers)
	}

	// Bronze configuration
	if v := os.Getenv("GHARVEST_BRONZE_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bronze.BatchSize)
	}
	if v := os.Getenv("GHARVEST_BRONZE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bronze.Workers)
	}

	// Silver configuration
	if v := os.Getenv("GHARVEST_SILVER_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Silver.Workers)
	}

	// Gold configuration
	if v := os.Getenv("GHARVEST_GOLD_START_DATE"); v != "" {
		cfg.Gold.StartDate = v
	}
	if v := os.Getenv("GHARVEST_GOLD_END_DATE"); v != "" {
		cfg.Gold.EndDate = v
	}
	if v := os.Getenv("GHARVEST_GOLD_TOP_N"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Gold.TopN)
	}

	// Storage configuration
	if v := os.Getenv("GHARVEST_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("GHARVEST_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GHARVEST_STORAGE_PREFIX"); v != "" {
		cfg.Storage.Prefix = v
	}
	if v := os.Getenv("GHARVEST_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("GHARVEST_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("GHARVEST_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.RawDir(),
		c.BronzeDir(),
		c.SilverDir(),
		c.GoldDir(),
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

// GoldRange returns the configured Gold date range. Zero times mean
// unbounded on that side.
func (c *Config) GoldRange() (start, end time.Time) {
	if c.Gold.StartDate != "" {
		start, _ = time.Parse("2006-01-02", c.Gold.StartDate)
	}
	if c.Gold.EndDate != "" {
		end, _ = time.Parse("2006-01-02", c.Gold.EndDate)
	}
	return start, end
}
