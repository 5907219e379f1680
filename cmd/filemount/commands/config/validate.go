package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filemount/filemount/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the filemount configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  filemount config validate

  # Validate specific config file
  filemount config validate --config /etc/filemount/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if cfg.API.GetJWTSecret() == "" {
		warnings = append(warnings, "JWT secret not configured - the API will run unauthenticated")
	}
	if cfg.Blob.Type == config.BlobStoreS3 && cfg.Blob.S3.AccessKeyID == "" {
		warnings = append(warnings, "S3 credentials not configured - relying on the ambient credential chain")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  Blob store type: %s\n", cfg.Blob.Type)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
