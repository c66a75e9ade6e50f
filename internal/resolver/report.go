package resolver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/open-edge-platform/iso-manager/internal/family"
)

// WriteReport writes artifacts as CSV with a header row, so a dry run can
// be reviewed and later fed back with ReadReport.
func WriteReport(w io.Writer, artifacts []ResolvedArtifact) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(ResolvedArtifact{}); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, a := range artifacts {
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("writing report row for %s: %w", a.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadReport parses a report written by WriteReport.
func ReadReport(r io.Reader) ([]ResolvedArtifact, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("report is empty")
		}
		return nil, fmt.Errorf("failed to create CSV decoder for report: %w", err)
	}

	var artifacts []ResolvedArtifact
	for {
		var a ResolvedArtifact
		if err := dec.Decode(&a); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode report row %d: %w", len(artifacts)+1, err)
		}
		if err := checkRow(a); err != nil {
			return nil, fmt.Errorf("report row %d: %w", len(artifacts)+1, err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// checkRow keeps rows from escaping the download root.
func checkRow(a ResolvedArtifact) error {
	switch {
	case a.URL == "" || a.Filename == "" || a.Category == "":
		return fmt.Errorf("%q is missing url, filename or category", a.Name)
	case strings.ContainsAny(a.Category, `/\`) || a.Category == "." || a.Category == "..":
		return fmt.Errorf("%q: category %q must be a single directory name", a.Name, a.Category)
	case path.Base(a.Filename) != a.Filename || a.Filename == "..":
		return fmt.Errorf("%q: filename %q must not contain a path", a.Name, a.Filename)
	}
	_, err := family.Parse(string(a.Family))
	return err
}
