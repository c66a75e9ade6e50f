package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/open-edge-platform/iso-manager/internal/config"
	"github.com/open-edge-platform/iso-manager/internal/module"
	"github.com/spf13/cobra"
)

// createListCommand creates the list subcommand
func createListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured modules grouped by category",
		Args:  cobra.NoArgs,
		RunE:  executeList,
	}

	return listCmd
}

// executeList handles the list command logic
func executeList(cmd *cobra.Command, args []string) error {
	dir, err := config.ModulesDir()
	if err != nil {
		return err
	}
	descs, err := module.LoadAll(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(descs) == 0 {
		fmt.Fprintf(out, "No modules found in %s\n", dir)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, category := range module.Categories(descs) {
		fmt.Fprintf(tw, "%s:\n", category)
		for _, d := range module.InCategory(descs, category) {
			fmt.Fprintf(tw, "  %s\t%s\t%s://%s%s\toption %d\n",
				d.Name, d.Family, d.Scheme, d.Server, d.Path, d.Option)
		}
	}
	return tw.Flush()
}

// moduleNameCompletion suggests configured module names
func moduleNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, err := config.ModulesDir()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names, err := module.Names(dir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, toComplete) {
			out = append(out, n)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
