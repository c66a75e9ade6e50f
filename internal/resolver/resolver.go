// Package resolver turns module descriptors into concrete download URLs by
// walking remote listings with the rules of each distribution family.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/open-edge-platform/iso-manager/internal/family"
	"github.com/open-edge-platform/iso-manager/internal/listing"
	"github.com/open-edge-platform/iso-manager/internal/matcher"
	"github.com/open-edge-platform/iso-manager/internal/module"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
	"github.com/open-edge-platform/iso-manager/internal/utils/slice"
)

var (
	// ErrNoVersion means no listing entry looked like a version.
	ErrNoVersion = errors.New("no version entries found")
	// ErrNoMatchingFile means no file satisfied the family's matching rule.
	ErrNoMatchingFile = errors.New("no matching image file")
	// ErrIndexOutOfRange means the configured option index exceeds the
	// number of matching files.
	ErrIndexOutOfRange = errors.New("option index out of range")
	// ErrNoRelease means neither the latest nor the previous version has a
	// release directory.
	ErrNoRelease = errors.New("no released version")
)

const releaseDir = "release"

// ResolvedArtifact is the outcome of resolving one descriptor.
type ResolvedArtifact struct {
	Name     string        `csv:"name"`
	Family   family.Family `csv:"family"`
	Category string        `csv:"category"`
	URL      string        `csv:"url"`
	Filename string        `csv:"filename"`
}

// Resolver resolves descriptors. The zero value is not usable; use New.
type Resolver struct {
	Open           listing.Opener // FTP sessions, one per Resolve call
	Client         *http.Client   // web index pages
	Order          matcher.Order  // version ordering policy
	ListingTimeout time.Duration
	UserAgent      string
}

// New returns a Resolver with an anonymous FTP opener and an HTTP client
// bounded by listingTimeout (0 uses listing.DefaultTimeout).
func New(order matcher.Order, listingTimeout time.Duration, userAgent string) *Resolver {
	if listingTimeout <= 0 {
		listingTimeout = listing.DefaultTimeout
	}
	if order == nil {
		order = matcher.ListingOrder{}
	}
	return &Resolver{
		Open:           listing.FTPOpener(listingTimeout),
		Client:         &http.Client{Timeout: listingTimeout},
		Order:          order,
		ListingTimeout: listingTimeout,
		UserAgent:      userAgent,
	}
}

// Resolve returns exactly one artifact for d, or an error naming the
// server and path involved. No partial result is ever returned.
func (r *Resolver) Resolve(ctx context.Context, d module.Descriptor) (ResolvedArtifact, error) {
	rule, ok := family.Lookup(d.Family)
	if !ok {
		return ResolvedArtifact{}, fmt.Errorf("module %s: %w: %q", d.Name, family.ErrUnknownFamily, d.Family)
	}

	var (
		a   ResolvedArtifact
		err error
	)
	switch rule.Protocol {
	case family.FTP:
		a, err = r.resolveFTP(ctx, d, rule)
	case family.Web:
		a, err = r.resolveWeb(ctx, d, rule)
	default:
		err = fmt.Errorf("unsupported protocol %s", rule.Protocol)
	}
	if err != nil {
		return ResolvedArtifact{}, fmt.Errorf("module %s (%s%s): %w", d.Name, d.Server, d.Path, err)
	}
	return a, nil
}

// ResolveAll resolves descs one after another. Failures are logged and
// collected; the artifacts of successful descriptors are always returned.
func (r *Resolver) ResolveAll(ctx context.Context, descs []module.Descriptor) ([]ResolvedArtifact, error) {
	log := logger.Logger()

	var (
		artifacts []ResolvedArtifact
		result    *multierror.Error
	)
	for _, d := range descs {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("resolution interrupted before %s: %w", d.Name, err))
			break
		}
		a, err := r.Resolve(ctx, d)
		if err != nil {
			log.Errorf("Skipping %s: %v", d.Name, err)
			result = multierror.Append(result, err)
			continue
		}
		log.Infof("Resolved %s -> %s", d.Name, a.URL)
		artifacts = append(artifacts, a)
	}
	return artifacts, result.ErrorOrNil()
}

func (r *Resolver) resolveFTP(ctx context.Context, d module.Descriptor, rule family.Rule) (ResolvedArtifact, error) {
	sess, err := r.Open(ctx, d.Server)
	if err != nil {
		return ResolvedArtifact{}, err
	}
	defer sess.Close()

	entries, err := sess.List(ctx, d.Path)
	if err != nil {
		return ResolvedArtifact{}, err
	}

	if rule.Layout == family.ArchFlat {
		files := matcher.FilesMatching(entries, rule.VersionPattern, rule.TokenIndex)
		if len(files) == 0 {
			return ResolvedArtifact{}, fmt.Errorf("%w in %s", ErrNoMatchingFile, d.Path)
		}
		// first match, the option index does not apply
		return r.artifact(d, d.Path, files[0]), nil
	}

	versions := r.order().Sort(matcher.Versions(entries, rule.VersionPattern))
	version, ok := matcher.Latest(versions, 0)
	if !ok {
		return ResolvedArtifact{}, fmt.Errorf("%w in %s", ErrNoVersion, d.Path)
	}
	dir := path.Join(d.Path, version)

	if rule.Layout == family.UbuntuRelease {
		released, err := hasRelease(ctx, sess, dir)
		if err != nil {
			return ResolvedArtifact{}, err
		}
		if !released {
			prev, ok := matcher.Latest(versions, 1)
			if !ok {
				return ResolvedArtifact{}, fmt.Errorf("%w: %s has no %s directory", ErrNoRelease, dir, releaseDir)
			}
			prevDir := path.Join(d.Path, prev)
			if released, err = hasRelease(ctx, sess, prevDir); err != nil {
				return ResolvedArtifact{}, err
			}
			if !released {
				return ResolvedArtifact{}, fmt.Errorf("%w: neither %s nor %s has a %s directory", ErrNoRelease, dir, prevDir, releaseDir)
			}
			logger.Logger().Infof("%s: %s has no %s directory, using %s", d.Name, version, releaseDir, prev)
			version = prev
		}
		dir = path.Join(d.Path, version, releaseDir)
	}

	files, err := sess.List(ctx, dir)
	if err != nil {
		return ResolvedArtifact{}, err
	}
	file, err := pick(matcher.Files(files, version, rule.TokenIndex), d.Option, dir)
	if err != nil {
		return ResolvedArtifact{}, err
	}
	return r.artifact(d, dir, file), nil
}

// hasRelease reports whether dir holds a release directory. A missing or
// empty version directory counts as unreleased.
func hasRelease(ctx context.Context, sess listing.Session, dir string) (bool, error) {
	entries, err := sess.List(ctx, dir)
	if err != nil && !errors.Is(err, listing.ErrEmptyListing) && !errors.Is(err, listing.ErrRemote) {
		return false, err
	}
	return slice.Contains(entries, releaseDir), nil
}

func (r *Resolver) resolveWeb(ctx context.Context, d module.Descriptor, rule family.Rule) (ResolvedArtifact, error) {
	web := listing.NewWeb(r.Client, d.Scheme, d.Server)
	web.UserAgent = r.UserAgent

	dir := dirPath(d.Path)
	hrefs, err := web.List(ctx, dir)
	if err != nil {
		return ResolvedArtifact{}, err
	}

	var candidates []string
	switch rule.Layout {
	case family.DatedFolder, family.VersionFolder:
		folder, err := r.newestFolder(hrefs, rule, dir)
		if err != nil {
			return ResolvedArtifact{}, err
		}
		dir = dirPath(resolveHref(web.URL(dir), folder).Path)
		if hrefs, err = web.List(ctx, dir); err != nil {
			return ResolvedArtifact{}, err
		}
		candidates = matcher.Images(hrefs)
	case family.SuffixFilter:
		candidates = matcher.WithSuffix(hrefs, rule.Suffix)
	case family.MarkerFilter:
		candidates = matcher.Images(matcher.Containing(hrefs, rule.Marker, string(rule.Family)))
	default:
		return ResolvedArtifact{}, fmt.Errorf("layout %s is not a web layout", rule.Layout)
	}

	href, err := pick(candidates, d.Option, dir)
	if err != nil {
		return ResolvedArtifact{}, err
	}
	u := resolveHref(web.URL(dir), href)
	return ResolvedArtifact{
		Name:     d.Name,
		Family:   d.Family,
		Category: d.Category,
		URL:      u.String(),
		Filename: path.Base(u.Path),
	}, nil
}

// newestFolder returns the href of the newest version-like folder link.
func (r *Resolver) newestFolder(hrefs []string, rule family.Rule, dir string) (string, error) {
	names := matcher.Names(hrefs)
	versions := r.order().Sort(slice.Unique(matcher.Versions(names, rule.VersionPattern)))
	newest, ok := matcher.Latest(versions, 0)
	if !ok {
		return "", fmt.Errorf("%w in %s", ErrNoVersion, dir)
	}
	for i, n := range names {
		if n == newest {
			return hrefs[i], nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoVersion, dir)
}

func (r *Resolver) order() matcher.Order {
	if r.Order == nil {
		return matcher.ListingOrder{}
	}
	return r.Order
}

func (r *Resolver) artifact(d module.Descriptor, dir, filename string) ResolvedArtifact {
	return ResolvedArtifact{
		Name:     d.Name,
		Family:   d.Family,
		Category: d.Category,
		URL:      d.Scheme + "://" + d.Server + strings.TrimSuffix(dir, "/") + "/" + filename,
		Filename: filename,
	}
}

func pick(files []string, option int, dir string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoMatchingFile, dir)
	}
	if option < 0 || option >= len(files) {
		return "", fmt.Errorf("%w: option %d, %d matching files in %s", ErrIndexOutOfRange, option, len(files), dir)
	}
	return files[option], nil
}

func dirPath(p string) string {
	return strings.TrimSuffix(p, "/") + "/"
}

// resolveHref interprets href relative to the page it was found on.
// Absolute hrefs are returned unchanged.
func resolveHref(pageURL, href string) *url.URL {
	base, err := url.Parse(pageURL)
	ref, rerr := url.Parse(href)
	if err != nil || rerr != nil {
		return &url.URL{Path: href}
	}
	return base.ResolveReference(ref)
}
