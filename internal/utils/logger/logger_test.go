package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

// resetLogger drops the global logger so the next call starts fresh.
func resetLogger() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	sugar = nil
	root = nil
	active = Config{}
	level.SetLevel(zapcore.InfoLevel)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{" info ", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerDefaultsToInfo(t *testing.T) {
	resetLogger()
	defer resetLogger()

	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
	if level.Level() != zapcore.InfoLevel {
		t.Errorf("expected info level, got %v", level.Level())
	}
}

func TestSetConsoleAndLevel(t *testing.T) {
	resetLogger()
	defer resetLogger()

	var buf bytes.Buffer
	old := SetConsole(&buf)
	defer SetConsole(old)

	log, cleanup, err := InitWithConfig(Config{Level: "info"})
	if err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	defer cleanup()

	log.Debug("hidden message")
	log.Info("shown message")
	if strings.Contains(buf.String(), "hidden message") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(buf.String(), "shown message") {
		t.Errorf("info message missing from console, got %q", buf.String())
	}

	if _, _, err := InitWithConfig(Config{Level: "debug"}); err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	Logger().Debug("visible message")
	if !strings.Contains(buf.String(), "visible message") {
		t.Errorf("debug message should be logged after switching level, got %q", buf.String())
	}
}

func TestConsoleConcurrentWrites(t *testing.T) {
	resetLogger()
	defer resetLogger()

	var buf bytes.Buffer
	old := SetConsole(&buf)
	defer SetConsole(old)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				Logger().Infof("worker line %d", j)
			}
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "worker line"); got != 160 {
		t.Errorf("expected 160 lines, got %d", got)
	}
}

func TestConsoleFollowsSetConsole(t *testing.T) {
	var first, second bytes.Buffer
	old := SetConsole(&first)
	defer SetConsole(old)

	w := Console()
	fmt.Fprint(w, "before")
	SetConsole(&second)
	fmt.Fprint(w, "after")

	if first.String() != "before" || second.String() != "after" {
		t.Errorf("console writes went to %q and %q", first.String(), second.String())
	}
}

func TestInitWithConfigFileTee(t *testing.T) {
	resetLogger()
	defer resetLogger()

	old := SetConsole(&bytes.Buffer{})
	defer SetConsole(old)

	path := filepath.Join(t.TempDir(), "logs", "iso-manager.log")
	log, cleanup, err := InitWithConfig(Config{Level: "info", FilePath: path})
	if err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	log.Infof("resolved %d modules", 3)
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "resolved 3 modules") {
		t.Errorf("log file missing message: %q", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Error("log file should not contain color escapes")
	}

	// same config after cleanup reopens the file
	log, cleanup, err = InitWithConfig(Config{Level: "info", FilePath: path})
	if err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	log.Info("second run")
	cleanup()
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "second run") {
		t.Errorf("log file missing message after reinit: %q", data)
	}
}

func TestInitWithConfigReconfigures(t *testing.T) {
	resetLogger()
	defer resetLogger()

	if _, cleanup, err := InitWithConfig(Config{Level: "info"}); err != nil {
		t.Fatalf("first init: %v", err)
	} else {
		cleanup()
	}
	if _, cleanup, err := InitWithConfig(Config{Level: "error"}); err != nil {
		t.Fatalf("second init: %v", err)
	} else {
		cleanup()
	}
	if level.Level() != zapcore.ErrorLevel {
		t.Errorf("expected error level after reconfiguration, got %v", level.Level())
	}
}

func TestInitWithConfigBadFile(t *testing.T) {
	resetLogger()
	defer resetLogger()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := InitWithConfig(Config{Level: "info", FilePath: filepath.Join(blocker, "x.log")}); err == nil {
		t.Fatal("expected error when log directory cannot be created")
	}
}
