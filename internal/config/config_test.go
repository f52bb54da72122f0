package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.StatCacheEnabled {
		t.Error("stat cache should default on")
	}
	if cfg.StatCacheTTL != time.Minute {
		t.Errorf("TTL = %v, want 1m", cfg.StatCacheTTL)
	}
	if !cfg.ContentCacheEnabled {
		t.Error("content cache should default on")
	}
	if cfg.Synthetic {
		t.Error("synthetic mode should default off")
	}
	if cfg.S3Region != "us-east-1" {
		t.Errorf("region = %q", cfg.S3Region)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ReadAheadKB != 0 {
		t.Errorf("read-ahead default = %d, want 0", cfg.ReadAheadKB)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
bucket: my-bucket
mount_point: /mnt/data
stat_cache:
  enabled: false
  ttl_seconds: 120
s3:
  endpoint: http://localhost:9000
  path_style: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bucket != "my-bucket" || cfg.MountPoint != "/mnt/data" {
		t.Errorf("bucket/mount = %q/%q", cfg.Bucket, cfg.MountPoint)
	}
	if cfg.StatCacheEnabled {
		t.Error("file should disable the stat cache")
	}
	if cfg.StatCacheTTL != 2*time.Minute {
		t.Errorf("TTL = %v, want 2m", cfg.StatCacheTTL)
	}
	if cfg.S3Endpoint != "http://localhost:9000" || !cfg.S3PathStyle {
		t.Errorf("endpoint = %q, path-style = %v", cfg.S3Endpoint, cfg.S3PathStyle)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bucket: from-file\nmount_point: /mnt\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GCSCFUSE_BUCKET", "from-env")
	t.Setenv("GCSCFUSE_S3_REGION", "eu-west-1")
	t.Setenv("GCSCFUSE_READ_AHEAD_KB", "1024")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bucket != "from-env" {
		t.Errorf("bucket = %q, want env value", cfg.Bucket)
	}
	if cfg.S3Region != "eu-west-1" {
		t.Errorf("region = %q, want env value", cfg.S3Region)
	}
	if cfg.ReadAheadKB != 1024 {
		t.Errorf("read-ahead = %d, want 1024", cfg.ReadAheadKB)
	}
	if cfg.MountPoint != "/mnt" {
		t.Errorf("mount = %q, want file value", cfg.MountPoint)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(viper.New(), "/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty config must not validate")
	}

	cfg.Bucket = "b"
	if err := cfg.Validate(); err == nil {
		t.Error("config without a mount point must not validate")
	}

	cfg.MountPoint = "/mnt"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
