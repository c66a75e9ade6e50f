package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/open-edge-platform/iso-manager/internal/resolver"
	"github.com/open-edge-platform/iso-manager/internal/staleness"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/slice"
	"github.com/spf13/cobra"
)

// Update command flags
var (
	updateSelect      []string
	updateAll         bool = false
	updateInteractive bool = false
	updateDryRun      bool = false
)

// pickFunc asks the operator which candidates to update.
var pickFunc = pickCandidates

// createUpdateCommand creates the update subcommand
func createUpdateCommand() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update [flags] [MODULE...]",
		Short: "Replace images that a newer release superseded",
		Long: `Resolve the newest image of each module and compare it with the images
already downloaded. Older builds of the same image are listed as update
candidates. Selected candidates have their old images moved to
<download_dir>/<category>/old/ and the new image downloaded.

Without --select, --all or --interactive the candidates are only listed.`,
		RunE:              executeUpdate,
		ValidArgsFunction: moduleNameCompletion,
	}

	updateCmd.Flags().StringSliceVarP(&updateSelect, "select", "s", nil,
		"Update only these candidates (comma separated)")
	updateCmd.Flags().BoolVarP(&updateAll, "all", "a", false,
		"Update every candidate")
	updateCmd.Flags().BoolVarP(&updateInteractive, "interactive", "i", false,
		"Choose candidates from an interactive list")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false,
		"Show what would be archived and downloaded without changing anything")
	updateCmd.MarkFlagsMutuallyExclusive("select", "all", "interactive")

	return updateCmd
}

// executeUpdate handles the update command execution logic
func executeUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Logger()
	out := cmd.OutOrStdout()

	descs, err := selectModules(args, "")
	if err != nil {
		return err
	}
	r, err := newResolver()
	if err != nil {
		return err
	}

	root, lock, err := lockDownloads(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	var errs *multierror.Error
	artifacts, err := r.ResolveAll(ctx, descs)
	errs = multierror.Append(errs, err)
	if ctx.Err() != nil {
		return errs.ErrorOrNil()
	}

	report, err := staleness.NewDetector(root).Check(artifacts)
	if err != nil {
		return multierror.Append(errs, err)
	}
	if len(report.Candidates) == 0 {
		fmt.Fprintln(out, "All images are up to date.")
		return errs.ErrorOrNil()
	}
	printCandidates(out, report)

	chosen, err := chooseCandidates(report)
	if err != nil {
		return multierror.Append(errs, err)
	}
	if len(chosen) == 0 {
		if !updateAll && !updateInteractive && len(updateSelect) == 0 {
			fmt.Fprintln(out, "\nRun with --all, --select or --interactive to update.")
		}
		return errs.ErrorOrNil()
	}

	records := report.RecordsFor(chosen)
	fresh := artifactsFor(artifacts, chosen)
	if updateDryRun {
		for _, rec := range records {
			fmt.Fprintf(out, "would archive %s to %s\n", rec.Source, filepath.Dir(rec.Destination))
		}
		for _, a := range fresh {
			fmt.Fprintf(out, "would download %s\n", a.URL)
		}
		return errs.ErrorOrNil()
	}

	moved, err := staleness.Archive(records)
	errs = multierror.Append(errs, err)
	log.Infof("Archived %d of %d stale images", len(moved), len(records))

	err = downloadArtifacts(ctx, out, logger.Console(), root, fresh, false)
	errs = multierror.Append(errs, err)
	return errs.ErrorOrNil()
}

// chooseCandidates applies --all, --select or --interactive to the
// candidates of report. No flag chooses nothing.
func chooseCandidates(report staleness.Report) ([]string, error) {
	log := logger.Logger()

	switch {
	case updateAll:
		return report.Candidates, nil
	case updateInteractive:
		return pickFunc(report)
	case len(updateSelect) > 0:
		var chosen []string
		for _, name := range slice.Unique(slice.SplitAll(updateSelect)) {
			if !slice.Contains(report.Candidates, name) {
				log.Warnf("%s has no stale image, ignoring", name)
				continue
			}
			chosen = append(chosen, name)
		}
		return chosen, nil
	}
	return nil, nil
}

func artifactsFor(artifacts []resolver.ResolvedArtifact, names []string) []resolver.ResolvedArtifact {
	var out []resolver.ResolvedArtifact
	for _, a := range artifacts {
		if slice.Contains(names, a.Name) {
			out = append(out, a)
		}
	}
	return out
}

func printCandidates(out io.Writer, report staleness.Report) {
	fmt.Fprintln(out, "Update candidates:")
	for _, name := range report.Candidates {
		fmt.Fprintf(out, "  %s\n", name)
		for _, rec := range report.RecordsFor([]string{name}) {
			fmt.Fprintf(out, "    %s/%s\n", rec.Category, rec.Filename)
		}
	}
}
