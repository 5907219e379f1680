package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/filemount/filemount/pkg/config"
)

var sweepOlderThan time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim abandoned staged uploads",
	Long: `Remove staged uploads that were never committed to durable storage.

Staged entries older than the cutoff are deleted from the staging area
(and from the token index when one is configured). The cutoff defaults to
the configured staging.sweep_after value.

Examples:
  # Sweep with the configured cutoff
  filemount sweep

  # Sweep everything older than one hour
  filemount sweep --older-than 1h`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "Age cutoff (default: staging.sweep_after from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	area, closeStaging, err := config.BuildStagingArea(cfg.Staging)
	if err != nil {
		return err
	}
	defer func() { _ = closeStaging() }()

	olderThan := sweepOlderThan
	if olderThan == 0 {
		olderThan = cfg.Staging.SweepAfter
	}
	if olderThan <= 0 {
		return fmt.Errorf("no age cutoff: set --older-than or staging.sweep_after")
	}

	removed, err := area.Sweep(cmd.Context(), olderThan)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Removed %d staged entries older than %s from %s\n", removed, olderThan, cfg.Staging.Dir)
	return nil
}
