// Package cache removes what download and update passes leave behind in
// the download root: interrupted *.part files and archived old/ images.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/iso-manager/internal/download"
	"github.com/open-edge-platform/iso-manager/internal/staleness"
	fileutil "github.com/open-edge-platform/iso-manager/internal/utils/file"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

// CleanOptions defines what should be removed.
type CleanOptions struct {
	CleanPartial  bool   // remove <category>/*.part
	CleanArchived bool   // remove <category>/old/
	Category      string // optional category filter
	DryRun        bool   // report actions without deleting anything
}

// CleanResult contains the outcome of a cleanup run.
type CleanResult struct {
	RemovedPaths []string
	SkippedPaths []string
}

// Clean removes leftovers under root according to opts.
func Clean(root string, opts CleanOptions) (*CleanResult, error) {
	log := logger.Logger()

	if !opts.CleanPartial && !opts.CleanArchived {
		return nil, fmt.Errorf("at least one scope must be specified")
	}

	targets, err := gatherTargets(root, opts)
	if err != nil {
		return nil, err
	}

	result := &CleanResult{}
	for _, target := range targets {
		exists, err := pathExists(target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			result.SkippedPaths = append(result.SkippedPaths, target)
			continue
		}

		if !opts.DryRun {
			if err := os.RemoveAll(target); err != nil {
				return nil, fmt.Errorf("removing %s: %w", target, err)
			}
			log.Debugf("removed %s", target)
		}
		result.RemovedPaths = append(result.RemovedPaths, target)
	}

	sort.Strings(result.RemovedPaths)
	sort.Strings(result.SkippedPaths)
	return result, nil
}

func gatherTargets(root string, opts CleanOptions) ([]string, error) {
	categories, err := categoryDirs(root, opts.Category)
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, dir := range categories {
		if opts.CleanPartial {
			parts, err := partialFiles(dir)
			if err != nil {
				return nil, err
			}
			targets = append(targets, parts...)
		}
		if opts.CleanArchived {
			old := filepath.Join(dir, staleness.OldDir)
			if err := ensureSubPath(root, old); err != nil {
				return nil, err
			}
			if ok, err := pathExists(old); err != nil {
				return nil, fmt.Errorf("checking %s: %w", old, err)
			} else if ok {
				targets = append(targets, old)
			}
		}
	}
	sort.Strings(targets)
	return targets, nil
}

// categoryDirs returns the category directories below root, or only the
// named one.
func categoryDirs(root, category string) ([]string, error) {
	if category != "" {
		dir := filepath.Join(root, category)
		if err := ensureSubPath(root, dir); err != nil {
			return nil, err
		}
		if filepath.Dir(dir) != filepath.Clean(root) {
			return nil, fmt.Errorf("category %q must be a single directory name", category)
		}
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // nothing downloaded yet
		}
		return nil, fmt.Errorf("listing download directory: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	return dirs, nil
}

func partialFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var out []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), download.PartSuffix) {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out, nil
}

func ensureSubPath(base, target string) error {
	ok, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refusing to operate on %s because it is outside %s", target, base)
	}
	return nil
}

func pathExists(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("path must not be empty")
	}
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
