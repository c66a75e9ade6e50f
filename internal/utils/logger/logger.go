// Package logger holds the process-wide zap logger. Console output goes to
// a replaceable writer so commands can route it to their own stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the verbosity and an optional file the log is teed to.
type Config struct {
	Level    string
	FilePath string
}

func (c Config) normalized() Config {
	return Config{Level: parseLevel(c.Level).String(), FilePath: strings.TrimSpace(c.FilePath)}
}

// consoleWriter serializes writes from concurrent download workers onto the
// current console.
type consoleWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *consoleWriter) Sync() error { return nil }

var (
	mu      sync.RWMutex
	sugar   *zap.SugaredLogger
	root    *zap.Logger
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logFile *os.File
	active  Config
	console = &consoleWriter{w: os.Stderr}
)

// rebuild replaces the global logger. mu must be held.
func rebuild(cfg Config) error {
	encCfg := zap.NewDevelopmentConfig().EncoderConfig
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), console, level),
	}

	var f *os.File
	if cfg.FilePath != "" {
		core, opened, err := fileCore(encCfg, cfg.FilePath)
		if err != nil {
			return err
		}
		f = opened
		cores = append(cores, core)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f

	level.SetLevel(parseLevel(cfg.Level))
	root = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	sugar = root.Sugar()
	zap.ReplaceGlobals(root)
	active = cfg
	return nil
}

func fileCore(encCfg zapcore.EncoderConfig, path string) (zapcore.Core, *os.File, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", path, err)
	}

	// no color escapes in files
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), level), f, nil
}

// InitWithConfig configures the global logger. It is rebuilt only when cfg
// differs from the active configuration. The returned cleanup flushes the
// logger and closes the log file.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	cfg = cfg.normalized()

	mu.Lock()
	defer mu.Unlock()
	if sugar == nil || active != cfg {
		if err := rebuild(cfg); err != nil {
			return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
		}
	}
	return sugar, flushAndClose(logFile), nil
}

// Logger returns the global sugared logger, set up at info level on first
// use.
func Logger() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		return s
	}

	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		if err := rebuild(Config{Level: "info"}.normalized()); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	}
	return sugar
}

// SetConsole sends console output to w and returns the previous writer. A
// nil w restores os.Stderr.
func SetConsole(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	console.mu.Lock()
	defer console.mu.Unlock()
	old := console.w
	console.w = w
	return old
}

// Console returns the writer log lines are printed to. Other output written
// through it never interleaves with a log line.
func Console() io.Writer {
	return console
}

func flushAndClose(f *os.File) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()

		if root != nil {
			// stderr returns EINVAL on Sync on some platforms
			_ = root.Sync()
		}
		if f != nil && logFile == f {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			logFile = nil
			// the file core is dead; force the next init to rebuild
			active = Config{}
		}
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
