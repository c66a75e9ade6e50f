// Package staleness finds images on disk that a newer resolution
// supersedes and moves them into the category's old/ directory.
package staleness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/open-edge-platform/iso-manager/internal/family"
	"github.com/open-edge-platform/iso-manager/internal/matcher"
	"github.com/open-edge-platform/iso-manager/internal/resolver"
	"github.com/open-edge-platform/iso-manager/internal/utils/file"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/slice"
)

// OldDir is the per-category directory archived images are moved to.
const OldDir = "old"

// ArchiveRecord describes one stale image and where it will be moved.
type ArchiveRecord struct {
	Name        string // module whose fresh image supersedes the file
	Filename    string
	Category    string
	Source      string
	Destination string
}

// Report is the outcome of a staleness check. Nothing on disk has been
// changed when it is produced.
type Report struct {
	Records    []ArchiveRecord
	Candidates []string // modules with at least one stale image, in artifact order
}

// RecordsFor returns the records belonging to the named modules.
func (r Report) RecordsFor(names []string) []ArchiveRecord {
	var out []ArchiveRecord
	for _, rec := range r.Records {
		if slice.Contains(names, rec.Name) {
			out = append(out, rec)
		}
	}
	return out
}

// SameFamily reports whether two image file names are builds of the same
// image: same number of hyphen tokens, identical tokens outside the rule's
// version positions, and version-like tokens where versions are expected.
func SameFamily(rule family.Rule, a, b string) bool {
	if !matcher.IsImage(a) || !matcher.IsImage(b) {
		return false
	}
	ta := strings.Split(strings.TrimSuffix(a, ".iso"), "-")
	tb := strings.Split(strings.TrimSuffix(b, ".iso"), "-")
	if len(ta) != len(tb) || len(ta) < 2 {
		return false
	}

	n := len(ta)
	for i := range ta {
		if !rule.IsVersionToken(i, n) {
			if ta[i] != tb[i] {
				return false
			}
			continue
		}
		if rule.TokenPattern != nil && (!rule.TokenPattern.MatchString(ta[i]) || !rule.TokenPattern.MatchString(tb[i])) {
			return false
		}
	}
	return true
}

// Stale reports whether existing is an older build superseded by fresh.
func Stale(rule family.Rule, existing, fresh string) bool {
	return existing != fresh && SameFamily(rule, existing, fresh)
}

// Detector compares resolved artifacts with the images stored under Root.
type Detector struct {
	Root string
}

// NewDetector returns a detector for the download root.
func NewDetector(root string) *Detector {
	return &Detector{Root: root}
}

// Check scans <Root>/<category>/ of every artifact. Sub-directories
// (including old/) and partial downloads are ignored.
func (d *Detector) Check(artifacts []resolver.ResolvedArtifact) (Report, error) {
	log := logger.Logger()

	var report Report
	seen := map[string]bool{}
	for _, a := range artifacts {
		rule, ok := family.Lookup(a.Family)
		if !ok {
			return Report{}, fmt.Errorf("artifact %s: %w: %q", a.Name, family.ErrUnknownFamily, a.Family)
		}

		dir := filepath.Join(d.Root, a.Category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Report{}, fmt.Errorf("reading %s: %w", dir, err)
		}

		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			name := e.Name()
			if !Stale(rule, name, a.Filename) {
				continue
			}
			src := filepath.Join(dir, name)
			if seen[src] {
				continue
			}
			seen[src] = true

			log.Debugf("%s supersedes %s", a.Filename, src)
			report.Records = append(report.Records, ArchiveRecord{
				Name:        a.Name,
				Filename:    name,
				Category:    a.Category,
				Source:      src,
				Destination: filepath.Join(dir, OldDir, name),
			})
			if !slice.Contains(report.Candidates, a.Name) {
				report.Candidates = append(report.Candidates, a.Name)
			}
		}
	}
	return report, nil
}

// Archive moves every record's file into its old/ directory and returns
// the destinations that were written. A failed move leaves the file where
// it was; the remaining records are still processed.
func Archive(records []ArchiveRecord) ([]string, error) {
	log := logger.Logger()

	var (
		moved []string
		errs  *multierror.Error
	)
	for _, rec := range records {
		if err := file.EnsureDir(filepath.Dir(rec.Destination)); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := file.RenameWithFallback(rec.Source, rec.Destination); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("archiving %s: %w", rec.Source, err))
			continue
		}
		log.Infof("Archived %s to %s", rec.Filename, filepath.Dir(rec.Destination))
		moved = append(moved, rec.Destination)
	}
	return moved, errs.ErrorOrNil()
}
