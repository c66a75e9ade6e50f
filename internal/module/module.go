// Package module loads the per-distribution descriptor files that tell
// iso-manager where to look for images and where to put them.
//
// A descriptor is a small "key = value" file named <name>.conf:
//
//	category = ubuntu
//	server   = ftp.halifax.rwth-aachen.de
//	path     = /ubuntu-releases
//	option   = 0
//
// The optional keys "family" (defaults to the file name) and "scheme"
// (defaults to https) override the derived values.
package module

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/open-edge-platform/iso-manager/internal/family"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/security"
)

// Ext is the file extension of descriptor files.
const Ext = ".conf"

// Descriptor is one configured distribution. Values are never modified
// after loading.
type Descriptor struct {
	Name     string        // module name, the descriptor file name without extension
	Family   family.Family // resolution strategy
	Category string        // sub-directory of the download root
	Server   string        // host, optionally host:port
	Path     string        // remote base path
	Option   int           // index among equally valid files
	Scheme   string        // scheme used for web listings and downloads
}

// Rule returns the family rule of d. Descriptors are validated on load, so
// the lookup cannot fail for loaded values.
func (d Descriptor) Rule() family.Rule {
	r, _ := family.Lookup(d.Family)
	return r
}

// Parse builds a Descriptor named name from descriptor file contents.
func Parse(name string, data []byte) (Descriptor, error) {
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return Descriptor{}, fmt.Errorf("parsing module %s: %w", name, err)
	}

	get := func(key string) string { return strings.TrimSpace(values[key]) }

	d := Descriptor{
		Name:     name,
		Category: get("category"),
		Server:   get("server"),
		Path:     get("path"),
		Scheme:   get("scheme"),
	}

	famName := get("family")
	if famName == "" {
		famName = name
	}
	if d.Family, err = family.Parse(famName); err != nil {
		return Descriptor{}, fmt.Errorf("module %s: %w", name, err)
	}

	if opt := get("option"); opt != "" {
		d.Option, err = strconv.Atoi(opt)
		if err != nil {
			return Descriptor{}, fmt.Errorf("module %s: invalid option %q: %w", name, opt, err)
		}
	}
	if d.Scheme == "" {
		d.Scheme = "https"
	}
	d.Path = "/" + strings.Trim(d.Path, "/")

	if err := d.validate(); err != nil {
		return Descriptor{}, fmt.Errorf("module %s: %w", name, err)
	}
	return d, nil
}

func (d Descriptor) validate() error {
	switch {
	case d.Category == "":
		return fmt.Errorf("category is required")
	case strings.ContainsAny(d.Category, `/\`) || d.Category == "." || d.Category == "..":
		return fmt.Errorf("category %q must be a single directory name", d.Category)
	case d.Server == "":
		return fmt.Errorf("server is required")
	case d.Option < 0:
		return fmt.Errorf("option must not be negative, got %d", d.Option)
	case d.Scheme != "http" && d.Scheme != "https":
		return fmt.Errorf("unsupported scheme %q", d.Scheme)
	}
	return security.ValidateStructStrings(d, security.DefaultLimits())
}

// Load reads <dir>/<name>.conf.
func Load(dir, name string) (Descriptor, error) {
	file := filepath.Join(dir, name+Ext)
	data, err := security.SafeReadFile(file, security.RejectSymlinks)
	if err != nil {
		return Descriptor{}, fmt.Errorf("reading module %s: %w", name, err)
	}
	return Parse(name, data)
}

// Names lists the module names found in dir, sorted.
func Names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading modules directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll loads every descriptor in dir. Invalid descriptors fail the
// whole load so configuration errors surface before any network access.
func LoadAll(dir string) ([]Descriptor, error) {
	names, err := Names(dir)
	if err != nil {
		return nil, err
	}
	return LoadNames(dir, names)
}

// LoadNames loads the named descriptors, in the given order.
func LoadNames(dir string, names []string) ([]Descriptor, error) {
	log := logger.Logger()

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		d, err := Load(dir, name)
		if err != nil {
			log.Errorf("invalid module %s: %v", name, err)
			return nil, err
		}
		log.Debugf("loaded module %s: family=%s category=%s server=%s path=%s option=%d",
			d.Name, d.Family, d.Category, d.Server, d.Path, d.Option)
		descs = append(descs, d)
	}
	return descs, nil
}

// Categories returns the distinct categories of descs, sorted.
func Categories(descs []Descriptor) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range descs {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out
}

// InCategory filters descs to those in category.
func InCategory(descs []Descriptor, category string) []Descriptor {
	var out []Descriptor
	for _, d := range descs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}
