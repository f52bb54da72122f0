// Package config loads layered configuration: defaults, then an optional
// YAML file, then GCSCFUSE_* environment variables, then command-line
// flags bound by the caller. Later layers win.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the mount needs.
type Config struct {
	// Required.
	Bucket     string
	MountPoint string

	// Stat cache.
	StatCacheEnabled bool
	StatCacheTTL     time.Duration // <= 0 disables expiry

	// Content cache.
	ContentCacheEnabled bool

	// Synthetic reader for exercising filesystem logic offline.
	Synthetic bool

	// S3-compatible endpoint.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// Observability.
	LogLevel    string
	LogFormat   string
	MetricsAddr string // empty disables the metrics listener

	// Kernel read-ahead applied best-effort after mount; 0 leaves the
	// kernel default.
	ReadAheadKB int
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bucket", "")
	v.SetDefault("mount_point", "")
	v.SetDefault("stat_cache.enabled", true)
	v.SetDefault("stat_cache.ttl_seconds", 60)
	v.SetDefault("content_cache.enabled", true)
	v.SetDefault("synthetic", false)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("read_ahead_kb", 0)
}

// Load resolves the configuration from v, optionally merging configFile
// first. Environment variables use the GCSCFUSE prefix with dots mapped
// to underscores (e.g. GCSCFUSE_S3_ENDPOINT).
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("GCSCFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Bucket:              v.GetString("bucket"),
		MountPoint:          v.GetString("mount_point"),
		StatCacheEnabled:    v.GetBool("stat_cache.enabled"),
		StatCacheTTL:        time.Duration(v.GetInt("stat_cache.ttl_seconds")) * time.Second,
		ContentCacheEnabled: v.GetBool("content_cache.enabled"),
		Synthetic:           v.GetBool("synthetic"),
		S3Endpoint:          v.GetString("s3.endpoint"),
		S3Region:            v.GetString("s3.region"),
		S3AccessKey:         v.GetString("s3.access_key"),
		S3SecretKey:         v.GetString("s3.secret_key"),
		S3PathStyle:         v.GetBool("s3.path_style"),
		LogLevel:            v.GetString("log.level"),
		LogFormat:           v.GetString("log.format"),
		MetricsAddr:         v.GetString("metrics_addr"),
		ReadAheadKB:         v.GetInt("read_ahead_kb"),
	}
	return cfg, nil
}

// Validate rejects configurations that cannot mount.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.MountPoint == "" {
		return fmt.Errorf("mount point is required")
	}
	return nil
}
