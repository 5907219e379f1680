// Package config loads, validates and persists the filemount configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/filemount/filemount/internal/bytesize"
	"github.com/filemount/filemount/internal/telemetry"
	"github.com/filemount/filemount/pkg/api"
	"github.com/filemount/filemount/pkg/record"
)

// Config represents the filemount configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILEMOUNT_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the record store (SQLite or PostgreSQL) that
	// persists records and their serialization columns.
	Database record.Config `mapstructure:"database" yaml:"database"`

	// Staging configures the cache area for uploads that are staged but not
	// yet stored.
	Staging StagingConfig `mapstructure:"staging" yaml:"staging"`

	// Blob selects and configures durable file storage.
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`

	// Mount holds the default lifecycle policies applied to mounted
	// attributes.
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the HTTP API server configuration.
	API api.Config `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing and Pyroscope profiling.
type TelemetryConfig struct {
	telemetry.Config `mapstructure:",squash" yaml:",inline"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling telemetry.ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// StagingConfig configures the staging (cache) area for uploads.
type StagingConfig struct {
	// Dir is the directory staged uploads are written to (required).
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// SweepAfter is the age past which abandoned staged entries are
	// reclaimed by the sweep command.
	// Default: 24h
	SweepAfter time.Duration `mapstructure:"sweep_after" yaml:"sweep_after"`

	// Index enables the persistent staging token index.
	Index StagingIndexConfig `mapstructure:"index" yaml:"index"`
}

// StagingIndexConfig configures the Badger-backed staging token index.
// Without the index the staging directory itself is the source of truth.
type StagingIndexConfig struct {
	// Enabled turns the index on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the index database directory.
	// Default: <staging dir>/.index
	Path string `mapstructure:"path" yaml:"path"`
}

// BlobStoreType selects the durable storage backend.
type BlobStoreType string

const (
	// BlobStoreFilesystem stores blobs on the local filesystem.
	BlobStoreFilesystem BlobStoreType = "filesystem"

	// BlobStoreS3 stores blobs in an S3 (or S3-compatible) bucket.
	BlobStoreS3 BlobStoreType = "s3"
)

// BlobConfig selects and configures durable file storage.
type BlobConfig struct {
	// Type is the storage backend.
	// Valid values: filesystem, s3. Default: filesystem.
	Type BlobStoreType `mapstructure:"type" validate:"omitempty,oneof=filesystem s3" yaml:"type"`

	// Filesystem configures the local filesystem backend.
	Filesystem FilesystemBlobConfig `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 configures the S3 backend.
	S3 S3BlobConfig `mapstructure:"s3" yaml:"s3"`
}

// FilesystemBlobConfig configures the local filesystem blob store.
type FilesystemBlobConfig struct {
	// Root is the directory blobs are stored under.
	// Default: $XDG_DATA_HOME/filemount/blobs
	Root string `mapstructure:"root" yaml:"root"`
}

// S3BlobConfig configures the S3 blob store.
type S3BlobConfig struct {
	// Endpoint overrides the S3 endpoint for S3-compatible services
	// (MinIO, localstack). Empty uses the AWS default resolution chain.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Region is the AWS region.
	// Default: us-east-1
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket is the bucket name (required for the s3 backend).
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// AccessKeyID and SecretAccessKey are static credentials. Empty values
	// fall back to the AWS default credential chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle switches to path-style addressing, required by most
	// S3-compatible services.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// MountConfig holds the default lifecycle policies for mounted attributes.
type MountConfig struct {
	// IgnoreIntegrityErrors swallows content validation failures: the
	// failing slot is left empty and the error is retained for inspection.
	IgnoreIntegrityErrors bool `mapstructure:"ignore_integrity_errors" yaml:"ignore_integrity_errors"`

	// IgnoreProcessingErrors does the same for processing failures.
	IgnoreProcessingErrors bool `mapstructure:"ignore_processing_errors" yaml:"ignore_processing_errors"`

	// IgnoreDownloadErrors does the same for remote download failures.
	IgnoreDownloadErrors bool `mapstructure:"ignore_download_errors" yaml:"ignore_download_errors"`

	// RemovePreviousOnUpdate deletes superseded stored files after an
	// update changes an attribute's serialization column.
	RemovePreviousOnUpdate bool `mapstructure:"remove_previous_on_update" yaml:"remove_previous_on_update"`

	// MaxDownloadSize caps remote downloads. Zero means no cap.
	// Supports human-readable formats: "100MB", "1Gi".
	MaxDownloadSize bytesize.ByteSize `mapstructure:"max_download_size" yaml:"max_download_size,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILEMOUNT_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  filemount init\n\n"+
				"Or specify a custom config file:\n"+
				"  filemount <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  filemount init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the given path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry credentials (JWT secret, S3 keys).
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Example: FILEMOUNT_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FILEMOUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use sizes like "1Gi", "500MB" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files can
// use durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "filemount")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "filemount")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
