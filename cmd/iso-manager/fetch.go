package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/open-edge-platform/iso-manager/internal/resolver"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Fetch command flags
var (
	fetchCategory   string = ""
	fetchDryRun     bool   = false
	fetchReport     string = "" // CSV file the resolved links are written to
	fetchFromReport string = "" // CSV file read instead of resolving
	fetchForce      bool   = false
)

// createFetchCommand creates the fetch subcommand
func createFetchCommand() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [flags] [MODULE...]",
		Short: "Resolve and download the newest images",
		Long: `Resolve the newest image of each module and download it into
<download_dir>/<category>/. Without module names every configured module is
fetched. Images that are already present are skipped.

Examples:
  # Fetch everything
  iso-manager fetch

  # Only print the resolved links
  iso-manager fetch --dry-run --report links.csv

  # Download links resolved earlier
  iso-manager fetch --from-report links.csv`,
		RunE:              executeFetch,
		ValidArgsFunction: moduleNameCompletion,
	}

	fetchCmd.Flags().StringVarP(&fetchCategory, "category", "c", "",
		"Only fetch modules of this category")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false,
		"Resolve and print links without downloading")
	fetchCmd.Flags().StringVar(&fetchReport, "report", "",
		"Write the resolved links to a CSV file")
	fetchCmd.Flags().StringVar(&fetchFromReport, "from-report", "",
		"Download the links of a CSV report instead of resolving")
	fetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false,
		"Download images even if they are already present")
	fetchCmd.MarkFlagsMutuallyExclusive("from-report", "category")
	fetchCmd.MarkFlagsMutuallyExclusive("from-report", "report")

	return fetchCmd
}

// executeFetch handles the fetch command execution logic
func executeFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Logger()

	var (
		artifacts []resolver.ResolvedArtifact
		errs      *multierror.Error
	)
	if fetchFromReport != "" {
		if len(args) > 0 {
			return fmt.Errorf("module names cannot be combined with --from-report")
		}
		var err error
		if artifacts, err = readReportFile(fetchFromReport); err != nil {
			return err
		}
		log.Infof("Loaded %d links from %s", len(artifacts), fetchFromReport)
	} else {
		descs, err := selectModules(args, fetchCategory)
		if err != nil {
			return err
		}
		r, err := newResolver()
		if err != nil {
			return err
		}
		artifacts, err = r.ResolveAll(ctx, descs)
		errs = multierror.Append(errs, err)
	}

	if fetchReport != "" {
		if err := writeReportFile(fetchReport, artifacts); err != nil {
			return err
		}
		log.Infof("Wrote %d links to %s", len(artifacts), fetchReport)
	}

	if fetchDryRun {
		printArtifacts(cmd.OutOrStdout(), artifacts)
		return errs.ErrorOrNil()
	}
	if len(artifacts) == 0 {
		return errs.ErrorOrNil()
	}

	root, lock, err := lockDownloads(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	err = downloadArtifacts(ctx, cmd.OutOrStdout(), logger.Console(), root, artifacts, fetchForce)
	errs = multierror.Append(errs, err)
	if ctx.Err() != nil {
		log.Warnf("Interrupted; partial downloads were left as *.part files")
	}
	return errs.ErrorOrNil()
}
