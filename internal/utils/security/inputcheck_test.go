package security

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestValidateString(t *testing.T) {
	lim := DefaultLimits()
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", "ubuntu-24.04-desktop-amd64.iso", false},
		{"empty", "", false},
		{"newline", "a\nb", false},
		{"nul", "a\x00b", true},
		{"bell", "a\u0007b", true},
		{"bad utf8", string([]byte{0xff, 0xfe}), true},
		{"too long", strings.Repeat("a", lim.MaxString+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateString(tt.name, tt.in, lim)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}

	lim.AllowNL = false
	if err := ValidateString("nl", "a\nb", lim); err == nil {
		t.Error("newline should be rejected when AllowNL is false")
	}
}

func TestValidatePathLimit(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxPath = 8
	if err := ValidatePath("dir", "/srv/isos", lim); err == nil {
		t.Error("expected path over MaxPath to be rejected")
	}
	if err := ValidateString("dir", "/srv/isos", lim); err != nil {
		t.Errorf("string limit should not apply path limit: %v", err)
	}
}

func TestValidateStructStrings(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	type holder struct {
		Server  string
		DataDir string
		Tags    []string
		Extra   map[string]string
		Head    *node
		private string
	}

	n1 := &node{Name: "a"}
	n2 := &node{Name: "b", Next: n1}
	n1.Next = n2

	h := holder{
		Server:  "ftp.example.org",
		DataDir: "/srv/isos",
		Tags:    []string{"lts", "desktop"},
		Extra:   map[string]string{"k": "v"},
		Head:    n1,
		private: "bad\x00",
	}
	lim := DefaultLimits()
	if err := ValidateStructStrings(h, lim); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	h.Tags[1] = "bad\x00"
	if err := ValidateStructStrings(h, lim); err == nil {
		t.Error("expected NUL in slice element to be rejected")
	}
	h.Tags[1] = "desktop"

	n2.Name = "bad\u0007"
	err := ValidateStructStrings(&h, lim)
	if err == nil {
		t.Fatal("expected control rune inside pointer cycle to be rejected")
	}
	if !strings.Contains(err.Error(), "Head.Next.Name") {
		t.Errorf("error should name the field path, got %v", err)
	}
}

func TestValidateFlagsAndArgs(t *testing.T) {
	cmd := &cobra.Command{Use: "fetch"}
	cmd.Flags().String("category", "ubuntu", "")
	cmd.Flags().String("report-file", "", "")
	cmd.Flags().StringSlice("select", []string{"ubuntu", "arch"}, "")
	cmd.Flags().Int("workers", 3, "")
	lim := DefaultLimits()

	if err := validateFlagsAndArgs(cmd, []string{"ubuntu"}, lim); err != nil {
		t.Fatalf("valid flags rejected: %v", err)
	}
	if err := validateFlagsAndArgs(cmd, []string{"bad\x00"}, lim); err == nil {
		t.Error("expected NUL in argument to be rejected")
	}

	if err := cmd.Flags().Set("select", "ubuntu,bad\x00"); err != nil {
		t.Fatal(err)
	}
	if err := validateFlagsAndArgs(cmd, nil, lim); err == nil {
		t.Error("expected NUL in slice flag to be rejected")
	}
}

func TestAttachRecursiveChainsExistingHook(t *testing.T) {
	ran := false
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{
		Use: "child",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			ran = true
			return nil
		},
	}
	child.Flags().String("name", "ok", "")
	root.AddCommand(child)
	AttachRecursive(root, DefaultLimits())

	if err := child.PersistentPreRunE(child, []string{"ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("existing PersistentPreRunE was not invoked")
	}

	ran = false
	if err := child.Flags().Set("name", "bad\x00"); err != nil {
		t.Fatal(err)
	}
	if err := child.PersistentPreRunE(child, nil); err == nil {
		t.Fatal("expected error for bad flag in child")
	}
	if ran {
		t.Error("existing hook should not run when validation fails")
	}
}
