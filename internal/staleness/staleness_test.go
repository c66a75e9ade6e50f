package staleness

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/open-edge-platform/iso-manager/internal/family"
	"github.com/open-edge-platform/iso-manager/internal/resolver"
)

func rule(t *testing.T, f family.Family) family.Rule {
	t.Helper()
	r, ok := family.Lookup(f)
	if !ok {
		t.Fatalf("no rule for %s", f)
	}
	return r
}

func TestStale(t *testing.T) {
	tests := []struct {
		name     string
		fam      family.Family
		existing string
		fresh    string
		want     bool
	}{
		{"mint version bump", family.Mint, "linuxmint-21-cinnamon-64bit.iso", "linuxmint-22-cinnamon-64bit.iso", true},
		{"mint other edition", family.Mint, "linuxmint-21-mate-64bit.iso", "linuxmint-22-cinnamon-64bit.iso", false},
		{"identical", family.Mint, "linuxmint-22-cinnamon-64bit.iso", "linuxmint-22-cinnamon-64bit.iso", false},
		{"ubuntu point release", family.Ubuntu, "ubuntu-24.04-desktop-amd64.iso", "ubuntu-24.04.1-desktop-amd64.iso", true},
		{"ubuntu desktop vs server", family.Ubuntu, "ubuntu-24.04-live-server-amd64.iso", "ubuntu-24.04.1-desktop-amd64.iso", false},
		{"budgie token two", family.UbuntuBudgie, "ubuntu-budgie-22.04-desktop-amd64.iso", "ubuntu-budgie-24.04-desktop-amd64.iso", true},
		{"arch build date", family.Arch, "archlinux-2024.05.01-x86_64.iso", "archlinux-2024.06.01-x86_64.iso", true},
		{"arch vs ubuntu", family.Arch, "ubuntu-24.04-desktop-amd64.iso", "archlinux-2024.06.01-x86_64.iso", false},
		{"ubuntu rule on arch names", family.Ubuntu, "archlinux-2024.05.01-x86_64.iso", "archlinux-2024.06.01-x86_64.iso", false},
		{"garuda last token", family.Garuda, "garuda-dr460nized-linux-zen-240428.iso", "garuda-dr460nized-linux-zen-240501.iso", true},
		{"kali release", family.Kali, "kali-linux-2024.1-installer-amd64.iso", "kali-linux-2024.2-installer-amd64.iso", true},
		{"kali live vs installer", family.Kali, "kali-linux-2024.1-live-amd64.iso", "kali-linux-2024.2-installer-amd64.iso", false},
		{"manjaro kernel bump", family.Manjaro, "manjaro-kde-23.1.4-240406-linux66.iso", "manjaro-kde-24.0.1-240513-linux69.iso", true},
		{"non image", family.Mint, "linuxmint-21-cinnamon-64bit.iso.part", "linuxmint-22-cinnamon-64bit.iso", false},
		{"non version token", family.Mint, "linuxmint-beta-cinnamon-64bit.iso", "linuxmint-22-cinnamon-64bit.iso", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stale(rule(t, tt.fam), tt.existing, tt.fresh); got != tt.want {
				t.Errorf("Stale(%s, %s, %s) = %v, want %v", tt.fam, tt.existing, tt.fresh, got, tt.want)
			}
		})
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(filepath.Base(path)), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckAndArchive(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "mint", "linuxmint-21-cinnamon-64bit.iso"))
	touch(t, filepath.Join(root, "mint", "linuxmint-21-mate-64bit.iso"))
	touch(t, filepath.Join(root, "mint", "linuxmint-22-cinnamon-64bit.iso.part"))
	touch(t, filepath.Join(root, "mint", OldDir, "linuxmint-20-cinnamon-64bit.iso"))
	touch(t, filepath.Join(root, "arch", "archlinux-2024.06.01-x86_64.iso"))
	touch(t, filepath.Join(root, "arch", "ubuntu-24.04-desktop-amd64.iso"))

	artifacts := []resolver.ResolvedArtifact{
		{Name: "mint", Family: family.Mint, Category: "mint", Filename: "linuxmint-22-cinnamon-64bit.iso"},
		{Name: "arch", Family: family.Arch, Category: "arch", Filename: "archlinux-2024.06.01-x86_64.iso"},
		{Name: "kali", Family: family.Kali, Category: "kali", Filename: "kali-linux-2024.2-installer-amd64.iso"},
	}

	report, err := NewDetector(root).Check(artifacts)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	want := []ArchiveRecord{{
		Name:        "mint",
		Filename:    "linuxmint-21-cinnamon-64bit.iso",
		Category:    "mint",
		Source:      filepath.Join(root, "mint", "linuxmint-21-cinnamon-64bit.iso"),
		Destination: filepath.Join(root, "mint", OldDir, "linuxmint-21-cinnamon-64bit.iso"),
	}}
	if !reflect.DeepEqual(report.Records, want) {
		t.Fatalf("records = %+v, want %+v", report.Records, want)
	}
	if !reflect.DeepEqual(report.Candidates, []string{"mint"}) {
		t.Errorf("candidates = %v", report.Candidates)
	}
	if _, err := os.Stat(want[0].Source); err != nil {
		t.Fatal("Check must not touch the filesystem")
	}

	if got := report.RecordsFor([]string{"arch"}); len(got) != 0 {
		t.Errorf("RecordsFor(arch) = %+v", got)
	}

	moved, err := Archive(report.RecordsFor([]string{"mint"}))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !reflect.DeepEqual(moved, []string{want[0].Destination}) {
		t.Errorf("moved = %v", moved)
	}
	if _, err := os.Stat(want[0].Source); !os.IsNotExist(err) {
		t.Error("source should be gone after archiving")
	}
	if _, err := os.Stat(want[0].Destination); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "mint", "linuxmint-21-mate-64bit.iso")); err != nil {
		t.Error("unrelated edition must stay in place")
	}
}

func TestArchiveContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "kali", "kali-linux-2024.1-installer-amd64.iso")
	touch(t, good)

	records := []ArchiveRecord{
		{
			Name:        "ubuntu",
			Filename:    "ubuntu-22.04-desktop-amd64.iso",
			Source:      filepath.Join(root, "ubuntu", "ubuntu-22.04-desktop-amd64.iso"),
			Destination: filepath.Join(root, "ubuntu", OldDir, "ubuntu-22.04-desktop-amd64.iso"),
		},
		{
			Name:        "kali",
			Filename:    filepath.Base(good),
			Source:      good,
			Destination: filepath.Join(root, "kali", OldDir, filepath.Base(good)),
		},
	}
	moved, err := Archive(records)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if len(moved) != 1 || moved[0] != records[1].Destination {
		t.Errorf("moved = %v", moved)
	}
}

func TestCheckUnknownFamily(t *testing.T) {
	_, err := NewDetector(t.TempDir()).Check([]resolver.ResolvedArtifact{{Name: "x", Family: "debian", Category: "x", Filename: "debian-12.iso"}})
	if err == nil {
		t.Fatal("expected error for unknown family")
	}
}
