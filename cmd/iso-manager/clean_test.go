package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanCommand(t *testing.T) {
	env := newTestEnv(t)
	part := seedImage(t, env, "mint", mintFresh+".part")
	archived := seedImage(t, env, "mint", filepath.Join("old", mintOld))

	out, err := env.run(t, "clean", "--dry-run", "--all")
	if err != nil {
		t.Fatalf("clean --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Would remove:") || !strings.Contains(out, part) {
		t.Errorf("unexpected dry run output:\n%s", out)
	}
	if _, err := os.Stat(part); err != nil {
		t.Fatal("dry run must not delete")
	}

	if _, err := env.run(t, "clean"); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Error("part file should be removed by default")
	}
	if _, err := os.Stat(archived); err != nil {
		t.Error("archived images are only removed with --archived")
	}

	out, err = env.run(t, "clean", "--archived")
	if err != nil {
		t.Fatalf("clean --archived failed: %v", err)
	}
	if _, err := os.Stat(archived); !os.IsNotExist(err) {
		t.Error("archived image should be removed")
	}
	if !strings.Contains(out, "Removed paths:") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
