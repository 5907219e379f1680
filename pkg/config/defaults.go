package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filemount/filemount/pkg/api"
	"github.com/filemount/filemount/pkg/record"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyDatabaseDefaults(&cfg.Database)
	applyStagingDefaults(&cfg.Staging)
	applyBlobDefaults(&cfg.Blob)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry and profiling defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "filemount"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if cfg.Profiling.ServiceName == "" {
		cfg.Profiling.ServiceName = "filemount"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *record.Config) {
	cfg.ApplyDefaults()
}

// applyStagingDefaults sets staging area defaults.
func applyStagingDefaults(cfg *StagingConfig) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(dataDir(), "staging")
	}
	if cfg.SweepAfter == 0 {
		cfg.SweepAfter = 24 * time.Hour
	}
	if cfg.Index.Enabled && cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.Dir, ".index")
	}
}

// applyBlobDefaults sets blob storage defaults.
func applyBlobDefaults(cfg *BlobConfig) {
	if cfg.Type == "" {
		cfg.Type = BlobStoreFilesystem
	}
	if cfg.Type == BlobStoreFilesystem && cfg.Filesystem.Root == "" {
		cfg.Filesystem.Root = filepath.Join(dataDir(), "blobs")
	}
	if cfg.Type == BlobStoreS3 && cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAPIDefaults sets HTTP API server defaults.
func applyAPIDefaults(cfg *api.Config) {
	cfg.ApplyDefaults()
}

// dataDir returns the base data directory for filemount state.
func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "filemount")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "filemount")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files, testing, and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: record.Config{
			Type: record.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
