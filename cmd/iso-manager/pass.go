package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/open-edge-platform/iso-manager/internal/config"
	"github.com/open-edge-platform/iso-manager/internal/download"
	"github.com/open-edge-platform/iso-manager/internal/matcher"
	"github.com/open-edge-platform/iso-manager/internal/module"
	"github.com/open-edge-platform/iso-manager/internal/resolver"
	"github.com/open-edge-platform/iso-manager/internal/utils/convert"
	"github.com/open-edge-platform/iso-manager/internal/utils/file"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/security"
	"github.com/open-edge-platform/iso-manager/internal/utils/slice"
)

// lockTimeout bounds how long a pass waits for another iso-manager
// process working on the same download directory.
const lockTimeout = 5 * time.Second

// selectModules loads the named modules, or all of them when names is
// empty, optionally restricted to one category.
func selectModules(names []string, category string) ([]module.Descriptor, error) {
	dir, err := config.ModulesDir()
	if err != nil {
		return nil, err
	}

	names = slice.Unique(slice.SplitAll(names))
	var descs []module.Descriptor
	if len(names) == 0 {
		descs, err = module.LoadAll(dir)
	} else {
		descs, err = module.LoadNames(dir, names)
	}
	if err != nil {
		return nil, err
	}

	if category != "" {
		descs = module.InCategory(descs, category)
		if len(descs) == 0 {
			return nil, fmt.Errorf("no modules in category %q", category)
		}
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("no modules found in %s", dir)
	}
	return descs, nil
}

// newResolver builds a resolver from the global configuration.
func newResolver() (*resolver.Resolver, error) {
	order, err := matcher.ParseOrder(config.VersionOrder())
	if err != nil {
		return nil, err
	}
	return resolver.New(order, config.ListingTimeout(), config.UserAgent()), nil
}

// lockDownloads takes the download root for the duration of a pass.
func lockDownloads(ctx context.Context) (string, *file.DirLock, error) {
	root, err := config.DownloadDir()
	if err != nil {
		return "", nil, err
	}
	lock, err := file.LockDir(ctx, root, lockTimeout)
	if err != nil {
		return "", nil, fmt.Errorf("another iso-manager run is using %s: %w", root, err)
	}
	return root, lock, nil
}

// downloadArtifacts downloads artifacts into <root>/<category>/. Images
// already present are skipped unless force is set. The progress bar is
// drawn on progressOut.
func downloadArtifacts(ctx context.Context, out, progressOut io.Writer, root string, artifacts []resolver.ResolvedArtifact, force bool) error {
	log := logger.Logger()

	var jobs []download.Job
	for _, a := range artifacts {
		job := download.Job{Name: a.Name, URL: a.URL, Dir: filepath.Join(root, a.Category)}
		dest, err := download.Destination(job)
		if err != nil {
			return err
		}
		if inside, err := file.IsSubPath(root, dest); err != nil || !inside {
			return fmt.Errorf("destination %s of %s is outside %s", dest, a.Name, root)
		}
		if !force && file.Exists(dest) {
			log.Infof("%s is up to date (%s)", a.Name, dest)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "Nothing to download.")
		return nil
	}

	o := download.New(config.MaxDownloads(), download.NewProgress(progressOut))
	o.Timeout = config.DownloadTimeout()
	o.UserAgent = config.UserAgent()

	results, err := o.Run(ctx, jobs)
	if results == nil {
		return err
	}
	printResults(out, results)
	return err
}

func printArtifacts(out io.Writer, artifacts []resolver.ResolvedArtifact) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tURL")
	for _, a := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, a.Category, a.URL)
	}
	tw.Flush()
}

func printResults(out io.Writer, results []download.Result) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tSIZE\tFILE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Task.Name, r.Status, convert.FormatBytes(r.Task.Transferred), r.Task.Destination)
	}
	tw.Flush()
}

// readReportFile loads artifacts from a report written by --report.
func readReportFile(path string) ([]resolver.ResolvedArtifact, error) {
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	return resolver.ReadReport(bytes.NewReader(data))
}

// writeReportFile stores artifacts as CSV at path.
func writeReportFile(path string, artifacts []resolver.ResolvedArtifact) error {
	var buf bytes.Buffer
	if err := resolver.WriteReport(&buf, artifacts); err != nil {
		return err
	}
	if err := security.SafeWriteFile(path, buf.Bytes(), 0644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
