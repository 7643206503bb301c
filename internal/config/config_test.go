package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"bad stage", func(c *Config) { c.Stage = "platinum" }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"bad storage type", func(c *Config) { c.Storage.Type = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, true},
		{"s3 with bucket", func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3.Bucket = "my-bucket"
		}, false},
		{"zero batch size", func(c *Config) { c.Bronze.BatchSize = 0 }, true},
		{"zero top n", func(c *Config) { c.Gold.TopN = 0 }, true},
		{"bad date", func(c *Config) { c.Archive.StartDate = "03/01/2024" }, true},
		{"good date", func(c *Config) { c.Archive.StartDate = "2024-03-01" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
stage: bronze
data_dir: /tmp/harvest
bronze:
  batch_size: 500
gold:
  top_n: 25
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Stage != StageBronze {
		t.Errorf("Stage = %s, want bronze", cfg.Stage)
	}
	if cfg.DataDir != "/tmp/harvest" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Bronze.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.Bronze.BatchSize)
	}
	if cfg.Gold.TopN != 25 {
		t.Errorf("TopN = %d, want 25", cfg.Gold.TopN)
	}
	// Untouched fields keep their defaults
	if cfg.Archive.BaseURL == "" {
		t.Error("defaults lost during file load")
	}
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GHARVEST_STAGE", "gold")
	t.Setenv("GHARVEST_DATA_DIR", "/var/harvest")
	t.Setenv("GHARVEST_GOLD_TOP_N", "10")
	t.Setenv("GHARVEST_S3_BUCKET", "events-bucket")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Stage != StageGold {
		t.Errorf("Stage = %s, want gold", cfg.Stage)
	}
	if cfg.DataDir != "/var/harvest" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Gold.TopN != 10 {
		t.Errorf("TopN = %d, want 10", cfg.Gold.TopN)
	}
	if cfg.Storage.S3.Bucket != "events-bucket" {
		t.Errorf("Bucket = %s", cfg.Storage.S3.Bucket)
	}
}

func TestShouldRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stage = StageAll
	for _, s := range []Stage{StageDownload, StageBronze, StageSilver, StageGold, StagePublish} {
		if !cfg.ShouldRun(s) {
			t.Errorf("StageAll should run %s", s)
		}
	}

	cfg.Stage = StageSilver
	if !cfg.ShouldRun(StageSilver) {
		t.Error("silver stage should run silver")
	}
	if cfg.ShouldRun(StageBronze) {
		t.Error("silver stage should not run bronze")
	}
}

func TestResolveDefaultsStoragePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/x"
	cfg.Resolve()
	if cfg.Storage.Path != filepath.Join("/data/x", "published") {
		t.Errorf("Storage.Path = %s", cfg.Storage.Path)
	}
}
