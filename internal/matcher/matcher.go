// Package matcher filters raw remote listings down to version entries and
// installable image files.
package matcher

import (
	"path"
	"regexp"
	"strings"
)

const isoExt = "iso"

// Versions returns the entries that fully match re, in listing order.
func Versions(entries []string, re *regexp.Regexp) []string {
	var out []string
	for _, e := range entries {
		if fullMatch(re, e) {
			out = append(out, e)
		}
	}
	return out
}

func fullMatch(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Files returns the image files whose hyphen token at tokenIndex equals
// version, in listing order.
func Files(entries []string, version string, tokenIndex int) []string {
	var out []string
	for _, e := range entries {
		tok, ok := imageToken(e, tokenIndex)
		if ok && tok == version {
			out = append(out, e)
		}
	}
	return out
}

// FilesMatching is Files with a pattern instead of a fixed version, used by
// families that embed a build date in the filename.
func FilesMatching(entries []string, re *regexp.Regexp, tokenIndex int) []string {
	var out []string
	for _, e := range entries {
		tok, ok := imageToken(e, tokenIndex)
		if ok && fullMatch(re, tok) {
			out = append(out, e)
		}
	}
	return out
}

func imageToken(entry string, index int) (string, bool) {
	if !strings.Contains(entry, "-") || !IsImage(entry) {
		return "", false
	}
	tokens := strings.Split(entry, "-")
	if index < 0 || index >= len(tokens) {
		return "", false
	}
	return tokens[index], true
}

// IsImage reports whether the extension of name is exactly "iso".
func IsImage(name string) bool {
	i := strings.LastIndex(name, ".")
	return i >= 0 && name[i+1:] == isoExt
}

// WithSuffix keeps hrefs ending in suffix.
func WithSuffix(hrefs []string, suffix string) []string {
	var out []string
	for _, h := range hrefs {
		if strings.HasSuffix(h, suffix) {
			out = append(out, h)
		}
	}
	return out
}

// Images keeps hrefs whose last path element is an image file.
func Images(hrefs []string) []string {
	var out []string
	for _, h := range hrefs {
		if IsImage(path.Base(stripQuery(h))) {
			out = append(out, h)
		}
	}
	return out
}

// Containing keeps hrefs that contain every one of tokens.
func Containing(hrefs []string, tokens ...string) []string {
	var out []string
next:
	for _, h := range hrefs {
		for _, tok := range tokens {
			if !strings.Contains(h, tok) {
				continue next
			}
		}
		out = append(out, h)
	}
	return out
}

// TrimDirSlash strips the trailing slash web indexes put on folder links.
func TrimDirSlash(entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = strings.TrimSuffix(e, "/")
	}
	return out
}

func stripQuery(h string) string {
	if i := strings.IndexAny(h, "?#"); i >= 0 {
		return h[:i]
	}
	return h
}

// Names reduces hrefs to their last path element, without query, fragment
// or trailing slash, so index links can be matched like listing entries.
func Names(hrefs []string) []string {
	out := make([]string, len(hrefs))
	for i, h := range hrefs {
		out[i] = path.Base(strings.TrimSuffix(stripQuery(h), "/"))
	}
	return out
}
