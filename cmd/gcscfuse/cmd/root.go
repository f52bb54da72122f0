// Command gcscfuse mounts an S3-compatible object-store bucket as a
// FUSE filesystem.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cgofuse "github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/raj-prince/gcscfuse/internal/config"
	"github.com/raj-prince/gcscfuse/internal/fs"
	"github.com/raj-prince/gcscfuse/internal/logging"
	"github.com/raj-prince/gcscfuse/internal/metrics"
	"github.com/raj-prince/gcscfuse/internal/store"
	"github.com/raj-prince/gcscfuse/internal/tuning"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "gcscfuse BUCKET MOUNTPOINT",
	Short: "Mount an object-store bucket as a filesystem",
	Long: "gcscfuse exposes a bucket of named objects as a POSIX-like " +
		"filesystem through FUSE, with a TTL-based stat cache, optional " +
		"whole-object content caching, and write-back buffering.",
	Args: cobra.MaximumNArgs(2),
	RunE: runMount,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.Bool("stat-cache", true, "enable the stat cache")
	flags.Int("stat-cache-ttl", 60, "stat cache TTL in seconds (0 disables expiry)")
	flags.Bool("content-cache", true, "enable whole-object content caching")
	flags.Bool("synthetic", false, "serve zero-filled content instead of reading the store")
	flags.String("endpoint", "", "S3-compatible endpoint URL (MinIO, GCS interop)")
	flags.String("region", "us-east-1", "bucket region")
	flags.String("access-key", "", "static access key (falls back to the SDK credential chain)")
	flags.String("secret-key", "", "static secret key")
	flags.Bool("path-style", false, "use path-style addressing")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "json", "log format: json, console")
	flags.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	flags.Int("read-ahead-kb", 0, "kernel read-ahead to apply after mount (0 keeps default)")

	viper.BindPFlag("stat_cache.enabled", flags.Lookup("stat-cache"))
	viper.BindPFlag("stat_cache.ttl_seconds", flags.Lookup("stat-cache-ttl"))
	viper.BindPFlag("content_cache.enabled", flags.Lookup("content-cache"))
	viper.BindPFlag("synthetic", flags.Lookup("synthetic"))
	viper.BindPFlag("s3.endpoint", flags.Lookup("endpoint"))
	viper.BindPFlag("s3.region", flags.Lookup("region"))
	viper.BindPFlag("s3.access_key", flags.Lookup("access-key"))
	viper.BindPFlag("s3.secret_key", flags.Lookup("secret-key"))
	viper.BindPFlag("s3.path_style", flags.Lookup("path-style"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
	viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	viper.BindPFlag("read_ahead_kb", flags.Lookup("read-ahead-kb"))
}

func runMount(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Bucket = args[0]
	}
	if len(args) > 1 {
		cfg.MountPoint = args[1]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logging.Error("metrics listener", zap.Error(err))
			}
		}()
	}

	st, err := store.NewS3(context.Background(), store.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	session := fs.NewSession(st, fs.Options{
		StatCacheEnabled:    cfg.StatCacheEnabled,
		StatCacheTTL:        cfg.StatCacheTTL,
		ContentCacheEnabled: cfg.ContentCacheEnabled,
		Synthetic:           cfg.Synthetic,
	})

	host := cgofuse.NewFileSystemHost(session)
	host.SetCapReaddirPlus(false)

	logging.Info("mounting",
		zap.String("bucket", cfg.Bucket),
		zap.String("mount_point", cfg.MountPoint))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if !host.Mount(cfg.MountPoint, nil) {
			logging.Error("mount failed", zap.String("mount_point", cfg.MountPoint))
		}
	}()

	if cfg.ReadAheadKB > 0 {
		go func() {
			// Give the kernel a moment to register the mount.
			time.Sleep(time.Second)
			if err := tuning.ApplyReadAhead(cfg.MountPoint, cfg.ReadAheadKB); err != nil {
				logging.Warn("read-ahead tuning", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("unmounting on signal", zap.String("signal", sig.String()))
		host.Unmount()
		<-done
	case <-done:
	}
	return nil
}
