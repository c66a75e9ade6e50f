package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/iso-manager/internal/config"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value
)

var (
	actualConfigFile string
	loggerCleanup    func()
)

func main() {
	// Interrupts cancel the context; running downloads stop after their
	// current chunk.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if loggerCleanup != nil {
		loggerCleanup()
	}
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	// persistent hooks of sub-commands chain with the root's instead of
	// replacing it
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:   "iso-manager",
		Short: "Keep a local library of Linux installation images up to date",
		Long: `iso-manager finds the newest installation image of every configured
distribution by walking the mirror's FTP directory or HTML index, downloads
the images concurrently, and archives images that a newer release superseded.

Each distribution is described by a module file <modules_dir>/<name>.conf.

Use 'iso-manager --help' to see available commands.
Use 'iso-manager <command> --help' for more information about a command.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")

	// Add all subcommands
	rootCmd.AddCommand(createFetchCommand())
	rootCmd.AddCommand(createUpdateCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createCleanCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())

	return rootCmd
}

// initConfig loads the global configuration once flags are parsed, applies
// flag overrides and sets up the logger.
func initConfig(cmd *cobra.Command, args []string) error {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if logFile != "" {
		globalConfig.Logging.File = logFile
	}
	if err := globalConfig.Validate(); err != nil {
		return fmt.Errorf("invalid command-line override: %w", err)
	}

	// Set global config singleton
	config.SetGlobal(globalConfig)
	actualConfigFile = configFilePath

	logger.SetConsole(cmd.ErrOrStderr())
	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		return err
	}
	if loggerCleanup == nil {
		loggerCleanup = cleanup
	}

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	log.Debugf("Config: max_downloads=%d, download_dir=%s, modules_dir=%s, version_order=%s",
		config.MaxDownloads(), globalConfig.DownloadDir, globalConfig.ModulesDir, config.VersionOrder())
	return nil
}
