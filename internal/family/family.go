// Package family holds the closed set of distribution families iso-manager
// knows how to resolve, together with the listing layout and filename
// convention of each one.
package family

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Family identifies a distribution or distribution spin.
type Family string

const (
	Ubuntu         Family = "ubuntu"
	UbuntuServer   Family = "ubuntu-server"
	Edubuntu       Family = "edubuntu"
	Lubuntu        Family = "lubuntu"
	Kubuntu        Family = "kubuntu"
	Xubuntu        Family = "xubuntu"
	XubuntuMinimal Family = "xubuntu-minimal"
	UbuntuStudio   Family = "ubuntu-studio"
	UbuntuCinnamon Family = "ubuntu-cinnamon"
	UbuntuBudgie   Family = "ubuntu-budgie"
	UbuntuUnity    Family = "ubuntu-unity"
	UbuntuMate     Family = "ubuntu-mate"
	Arch           Family = "arch"
	Garuda         Family = "garuda"
	Kali           Family = "kali"
	Mint           Family = "mint"
	Manjaro        Family = "manjaro"
)

// ErrUnknownFamily is returned for identifiers outside the supported set.
var ErrUnknownFamily = errors.New("unknown distribution family")

// Protocol selects the listing adapter used for a family.
type Protocol int

const (
	FTP Protocol = iota
	Web
)

func (p Protocol) String() string {
	switch p {
	case FTP:
		return "ftp"
	case Web:
		return "web"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Layout describes how the remote tree of a family is walked.
type Layout int

const (
	// UbuntuFlat: <base>/<version>/<files>
	UbuntuFlat Layout = iota
	// UbuntuRelease: <base>/<version>/release/<files>, falling back one
	// version when the newest one has no release directory yet.
	UbuntuRelease
	// ArchFlat: <base>/<files>, version is a date token inside the filename.
	ArchFlat
	// DatedFolder: newest numeric folder, then the .iso link inside it.
	DatedFolder
	// SuffixFilter: links ending in a fixed suffix, picked by option index.
	SuffixFilter
	// VersionFolder: newest version folder, then .iso links by option index.
	VersionFolder
	// MarkerFilter: links carrying a marker and the family name, by option index.
	MarkerFilter
)

func (l Layout) String() string {
	switch l {
	case UbuntuFlat:
		return "ubuntu-flat"
	case UbuntuRelease:
		return "ubuntu-release"
	case ArchFlat:
		return "arch-flat"
	case DatedFolder:
		return "dated-folder"
	case SuffixFilter:
		return "suffix-filter"
	case VersionFolder:
		return "version-folder"
	case MarkerFilter:
		return "marker-filter"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Rule is the resolution and comparison strategy for one family.
type Rule struct {
	Family   Family
	Protocol Protocol
	Layout   Layout

	// VersionPattern matches a version-like listing entry (or, for arch,
	// the date token of a filename).
	VersionPattern *regexp.Regexp

	// TokenIndex is the hyphen-delimited filename token that must equal the
	// selected version. Only meaningful for FTP layouts.
	TokenIndex int

	// VersionTokens are the filename tokens allowed to differ between two
	// builds of the same artifact. All other tokens identify the artifact.
	// Negative entries count from the end.
	VersionTokens []int

	// TokenPattern, when set, must match every version token of a filename
	// judged to belong to this family.
	TokenPattern *regexp.Regexp

	// Suffix filters links for SuffixFilter layouts.
	Suffix string

	// Marker filters links for MarkerFilter layouts.
	Marker string
}

var (
	ubuntuVersion  = regexp.MustCompile(`^[0-9]{2}\.[0-9]{1,2}(\.[0-9]{1,2})?$`)
	archDate       = regexp.MustCompile(`^[0-9]{4}\.[0-9]{2}\.[0-9]{2}$`)
	numericFolder  = regexp.MustCompile(`^[0-9]+/?$`)
	mintFolder     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?/?$`)
	kaliVersion    = regexp.MustCompile(`^[0-9]{4}\.[0-9]+[a-z]?$`)
	garudaBuild    = regexp.MustCompile(`^[0-9]{6}$`)
	mintVersion    = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	manjaroVersion = regexp.MustCompile(`^(linux)?[0-9]+(\.[0-9]+)*$`)
)

func ubuntuRule(f Family, layout Layout, token int) Rule {
	return Rule{
		Family:         f,
		Protocol:       FTP,
		Layout:         layout,
		VersionPattern: ubuntuVersion,
		TokenIndex:     token,
		VersionTokens:  []int{token},
		TokenPattern:   ubuntuVersion,
	}
}

var rules = map[Family]Rule{
	Ubuntu:         ubuntuRule(Ubuntu, UbuntuFlat, 1),
	UbuntuServer:   ubuntuRule(UbuntuServer, UbuntuFlat, 1),
	Edubuntu:       ubuntuRule(Edubuntu, UbuntuRelease, 1),
	Lubuntu:        ubuntuRule(Lubuntu, UbuntuRelease, 1),
	Kubuntu:        ubuntuRule(Kubuntu, UbuntuRelease, 1),
	Xubuntu:        ubuntuRule(Xubuntu, UbuntuRelease, 1),
	XubuntuMinimal: ubuntuRule(XubuntuMinimal, UbuntuRelease, 1),
	UbuntuStudio:   ubuntuRule(UbuntuStudio, UbuntuRelease, 1),
	UbuntuCinnamon: ubuntuRule(UbuntuCinnamon, UbuntuRelease, 1),
	UbuntuBudgie:   ubuntuRule(UbuntuBudgie, UbuntuRelease, 2),
	UbuntuUnity:    ubuntuRule(UbuntuUnity, UbuntuRelease, 2),
	UbuntuMate:     ubuntuRule(UbuntuMate, UbuntuRelease, 2),
	Arch: {
		Family:         Arch,
		Protocol:       FTP,
		Layout:         ArchFlat,
		VersionPattern: archDate,
		TokenIndex:     1,
		VersionTokens:  []int{1},
		TokenPattern:   archDate,
	},
	// garuda-dr460nized-linux-zen-240428.iso
	Garuda: {
		Family:         Garuda,
		Protocol:       Web,
		Layout:         DatedFolder,
		VersionPattern: numericFolder,
		VersionTokens:  []int{-1},
		TokenPattern:   garudaBuild,
	},
	// kali-linux-2024.2-installer-amd64.iso
	Kali: {
		Family:        Kali,
		Protocol:      Web,
		Layout:        SuffixFilter,
		Suffix:        "amd64.iso",
		VersionTokens: []int{2},
		TokenPattern:  kaliVersion,
	},
	// linuxmint-22-cinnamon-64bit.iso
	Mint: {
		Family:         Mint,
		Protocol:       Web,
		Layout:         VersionFolder,
		VersionPattern: mintFolder,
		VersionTokens:  []int{1},
		TokenPattern:   mintVersion,
	},
	// manjaro-kde-24.0.1-240513-linux69.iso
	Manjaro: {
		Family:        Manjaro,
		Protocol:      Web,
		Layout:        MarkerFilter,
		Marker:        "download.manjaro.org",
		VersionTokens: []int{2, 3, 4},
		TokenPattern:  manjaroVersion,
	},
}

// Lookup returns the rule registered for f.
func Lookup(f Family) (Rule, bool) {
	r, ok := rules[f]
	return r, ok
}

// Parse validates s against the supported families.
func Parse(s string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rules[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
	return f, nil
}

// All returns every supported family, sorted by name.
func All() []Family {
	out := make([]Family, 0, len(rules))
	for f := range rules {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsVersionToken reports whether token i of an n-token filename may differ
// between two builds.
func (r Rule) IsVersionToken(i, n int) bool {
	for _, v := range r.VersionTokens {
		if v < 0 {
			v += n
		}
		if v == i {
			return true
		}
	}
	return false
}
