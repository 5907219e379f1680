package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/internal/telemetry"
	"github.com/filemount/filemount/pkg/api"
	"github.com/filemount/filemount/pkg/config"
	"github.com/filemount/filemount/pkg/metrics"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/staging"
	"github.com/filemount/filemount/pkg/uploader"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the filemount server",
	Long: `Start the filemount API server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/filemount/config.yaml.

Examples:
  # Start with default config
  filemount serve

  # Start with custom config file
  filemount serve --config /etc/filemount/config.yaml

  # Start with environment variable overrides
  FILEMOUNT_LOGGING_LEVEL=DEBUG filemount serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := cfg.Telemetry.Config
	telemetryCfg.ServiceName = "filemount"
	telemetryCfg.ServiceVersion = Version
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := cfg.Telemetry.Profiling
	profilingCfg.ServiceName = "filemount"
	profilingCfg.ServiceVersion = Version
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Record store
	store, err := record.NewStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("record store close error", "error", err)
		}
	}()
	logger.Info("Record store ready", "type", cfg.Database.Type)

	// Staging area and blob store
	area, closeStaging, err := config.BuildStagingArea(cfg.Staging)
	if err != nil {
		return fmt.Errorf("failed to initialize staging area: %w", err)
	}
	defer func() {
		if err := closeStaging(); err != nil {
			logger.Error("staging index close error", "error", err)
		}
	}()

	blobs, err := config.BuildBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	logger.Info("Blob store ready", "type", cfg.Blob.Type)

	// Mounted attributes
	factory := uploader.NewFactory(area, blobs, cfg.Mount.UploaderOptions()...)
	registry := mount.NewRegistry()

	mountMetrics := metrics.NewMountMetrics()

	avatarOpts := cfg.Mount.MountOptions(factory)
	avatarOpts.Metrics = mountMetrics
	if err := registry.Mount(api.AttrAvatar, avatarOpts); err != nil {
		return fmt.Errorf("failed to mount avatar: %w", err)
	}

	galleryOpts := cfg.Mount.MountOptions(factory)
	galleryOpts.Multiple = true
	galleryOpts.Metrics = mountMetrics
	if err := registry.Mount(api.AttrGallery, galleryOpts); err != nil {
		return fmt.Errorf("failed to mount gallery: %w", err)
	}

	// Standalone metrics listener, separate from the API port
	var metricsServer *http.Server
	if mh := metrics.Handler(); mh != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mh)
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Periodic staging sweep for abandoned uploads
	go runSweeper(ctx, area, cfg.Staging.SweepAfter)

	apiServer, err := api.NewServer(cfg.API, api.Deps{
		Store:    store,
		Registry: registry,
		Blobs:    blobs,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	logger.Info("API server configured", "port", apiServer.Port())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	return nil
}

// runSweeper reclaims abandoned staged uploads on an hourly cadence.
func runSweeper(ctx context.Context, area *staging.Area, olderThan time.Duration) {
	if olderThan <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := area.Sweep(ctx, olderThan)
			if err != nil {
				logger.Warn("staging sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("staging sweep reclaimed entries", "removed", removed, "older_than", olderThan)
			}
		}
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
