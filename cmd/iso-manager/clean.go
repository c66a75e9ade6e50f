package main

import (
	"fmt"

	"github.com/open-edge-platform/iso-manager/internal/cache"
	"github.com/spf13/cobra"
)

func createCleanCommand() *cobra.Command {
	var (
		opts cache.CleanOptions
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove partial downloads or archived images",
		Long: `Remove what earlier runs left in the download directory.

Interrupted downloads stay behind as *.part files and superseded images are
moved to <category>/old/. By default, the command removes *.part files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			partialFlag := cmd.Flags().Changed("partial")
			archivedFlag := cmd.Flags().Changed("archived")

			if all {
				opts.CleanPartial = true
				opts.CleanArchived = true
			} else if !partialFlag && !archivedFlag {
				opts.CleanPartial = true
			}

			if !opts.CleanPartial && !opts.CleanArchived {
				return fmt.Errorf("nothing to clean: specify --partial, --archived, or --all")
			}

			root, lock, err := lockDownloads(cmd.Context())
			if err != nil {
				return err
			}
			defer lock.Unlock()

			result, err := cache.Clean(root, opts)
			if err != nil {
				return err
			}

			output := []string{}
			if opts.DryRun {
				output = append(output, "Dry run: no files were deleted.")
			}

			if len(result.RemovedPaths) > 0 {
				header := "Removed paths:"
				if opts.DryRun {
					header = "Would remove:"
				}
				output = append(output, header)
				output = append(output, indentPaths(result.RemovedPaths)...)
			} else {
				output = append(output, fmt.Sprintf("Nothing to clean in %s.", root))
			}

			if len(result.SkippedPaths) > 0 {
				output = append(output, "Skipped (not found):")
				output = append(output, indentPaths(result.SkippedPaths)...)
			}

			writer := cmd.OutOrStdout()
			for _, line := range output {
				fmt.Fprintln(writer, line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove partial downloads and archived images")
	cmd.Flags().BoolVar(&opts.CleanPartial, "partial", false, "Remove *.part files of interrupted downloads")
	cmd.Flags().BoolVar(&opts.CleanArchived, "archived", false, "Remove the old/ directories of archived images")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Restrict cleanup to one category")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func indentPaths(values []string) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = "  " + v
	}
	return lines
}
