package main

import (
	"fmt"

	"github.com/open-edge-platform/iso-manager/internal/config"
	"github.com/spf13/cobra"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for iso-manager.

Available commands:
  init    Initialize a new configuration file with default values`,
	}

	configCmd.AddCommand(createConfigInitCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as iso-manager.yml

Examples:
  # Create config in current directory
  iso-manager config init

  # Create config at specific location
  iso-manager config init ~/.config/iso-manager/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "iso-manager.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()

	// Save to file with descriptive comments
	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(out, "\nDefault configuration settings:\n")
	fmt.Fprintf(out, "  Download Directory: %s\n", defaultConfig.DownloadDir)
	fmt.Fprintf(out, "  Max Downloads: %d\n", defaultConfig.MaxDownloads)
	fmt.Fprintf(out, "  Modules Directory: %s\n", defaultConfig.ModulesDir)
	fmt.Fprintf(out, "  Version Order: %s\n", defaultConfig.VersionOrder)
	fmt.Fprintf(out, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(out, "\nEdit the configuration file to customize these settings.\n")

	return nil
}
