package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Order decides which version entry counts as the newest. Implementations
// return a new slice sorted oldest first and never modify their input.
type Order interface {
	Name() string
	Sort(versions []string) []string
}

// ListingOrder trusts the remote listing: the last entry is the newest.
type ListingOrder struct{}

func (ListingOrder) Name() string { return "listing" }

func (ListingOrder) Sort(versions []string) []string {
	return append([]string(nil), versions...)
}

// SemverOrder sorts entries as (lenient) semantic versions so that "9.10"
// sorts before "10.04". Entries that do not parse keep their listing order
// ahead of the parsed ones.
type SemverOrder struct{}

func (SemverOrder) Name() string { return "semver" }

func (SemverOrder) Sort(versions []string) []string {
	type parsed struct {
		raw string
		v   *semver.Version
	}
	var plain []string
	var vs []parsed
	for _, raw := range versions {
		v, err := semver.NewVersion(strings.TrimSuffix(raw, "/"))
		if err != nil {
			plain = append(plain, raw)
			continue
		}
		vs = append(vs, parsed{raw: raw, v: v})
	}
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].v.LessThan(vs[j].v) })

	out := append([]string(nil), plain...)
	for _, p := range vs {
		out = append(out, p.raw)
	}
	return out
}

// ParseOrder maps a configuration value to an Order.
func ParseOrder(name string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "listing":
		return ListingOrder{}, nil
	case "semver":
		return SemverOrder{}, nil
	default:
		return nil, fmt.Errorf("unknown version order %q (supported: listing, semver)", name)
	}
}

// Latest returns the entry stepsBack positions before the newest one.
func Latest(versions []string, stepsBack int) (string, bool) {
	i := len(versions) - 1 - stepsBack
	if stepsBack < 0 || i < 0 {
		return "", false
	}
	return versions[i], true
}
