// internal/config/global.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/open-edge-platform/iso-manager/internal/config/validate"
	"github.com/open-edge-platform/iso-manager/internal/utils/security"
	"github.com/open-edge-platform/iso-manager/internal/utils/slice"
	"gopkg.in/yaml.v3"
)

// GlobalConfig holds tool-level settings shared by every command
type GlobalConfig struct {
	DownloadDir  string `yaml:"download_dir" json:"download_dir"`                 // Root directory for images, one sub-directory per category (default: ./isos)
	MaxDownloads int    `yaml:"max_downloads" json:"max_downloads"`               // Concurrent downloads (1-32, default: 3)
	ModulesDir   string `yaml:"modules_dir" json:"modules_dir"`                   // Directory holding <name>.conf descriptors (default: ./modules)
	VersionOrder string `yaml:"version_order" json:"version_order"`               // listing (default) or semver
	UserAgent    string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"` // User-Agent for web listings and downloads

	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`
	Logging  LoggingConfig `yaml:"logging" json:"logging"`
}

// TimeoutConfig holds Go duration strings; "0" disables a timeout
type TimeoutConfig struct {
	Listing  string `yaml:"listing" json:"listing"`   // Bound on a single remote listing (default: 30s)
	Download string `yaml:"download" json:"download"` // Bound on a single download (default: 0, none)
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

// Global singleton variables
var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		DownloadDir:  "./isos",
		MaxDownloads: 3,
		ModulesDir:   "./modules",
		VersionOrder: "listing",
		Timeouts: TimeoutConfig{
			Listing:  "30s",
			Download: "0",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig loads configuration from the specified path, then
// applies ISO_MANAGER_* overrides from a .env file next to it and from the
// process environment.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	config := DefaultGlobalConfig()

	envDir := "."
	if configPath != "" {
		envDir = filepath.Dir(configPath)
		if err := config.loadFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(filepath.Join(envDir, EnvFile)); err != nil {
		log.Errorf("Error applying environment overrides: %v", err)
		return nil, err
	}

	jsonData, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		log.Errorf("Schema validation failed: %v", err)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		log.Errorf("Config validation failed: %v", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (gc *GlobalConfig) loadFile(configPath string) error {
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil // defaults if file doesn't exist
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return nil
		}
		log.Errorf("Error accessing config file %s: %v", configPath, err)
		return fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yaml" && ext != ".yml" {
		log.Errorf("Unsupported config file format: %s", ext)
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		log.Errorf("Error reading config file %s: %v", configPath, err)
		return fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	// schema rejects unknown keys; check the file as written, before defaults
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		log.Errorf("Error parsing YAML config: %v", err)
		return fmt.Errorf("parsing YAML config: %w", err)
	}
	if raw != nil {
		jsonData, err := json.Marshal(normalizeYAML(raw))
		if err != nil {
			return fmt.Errorf("converting config to JSON for validation: %w", err)
		}
		if err := validate.ValidateConfigJSON(jsonData); err != nil {
			log.Errorf("Schema validation failed: %v", err)
			return fmt.Errorf("schema validation failed: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, gc); err != nil {
		log.Errorf("Error parsing YAML config: %v", err)
		return fmt.Errorf("parsing YAML config: %w", err)
	}
	return nil
}

// normalizeYAML converts map[interface{}]interface{} nodes (yaml.v3 only
// produces them for non-string keys) into JSON-encodable maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

// SaveGlobalConfigWithComments saves the configuration with descriptive
// comments. Used by the config init command.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Errorf("Failed to create config directory: %v", err)
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(gc)
	if err != nil {
		log.Errorf("Error converting config to JSON for validation: %v", err)
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}

	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		log.Errorf("Config validation failed before save: %v", err)
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		log.Errorf("Error writing config file: %v", err)
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// renderCommentedYAML builds a YAML representation of the config with comments.
func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# iso-manager - Global Configuration\n")
	b.WriteString("# Per-distribution settings live in <modules_dir>/<name>.conf.\n")
	b.WriteString("# ISO_MANAGER_DOWNLOAD_DIR, ISO_MANAGER_MAX_DOWNLOADS and ISO_MANAGER_MODULES_DIR\n")
	b.WriteString("# override the values below, from the environment or a .env file next to this one.\n\n")

	fmt.Fprintf(&b, "download_dir: %q\n", gc.DownloadDir)
	b.WriteString("# Root directory for images (default: ./isos)\n")
	b.WriteString("# Each module stores its image in <download_dir>/<category>/, superseded\n")
	b.WriteString("# images are moved to <download_dir>/<category>/old/\n\n")

	fmt.Fprintf(&b, "max_downloads: %d\n", gc.MaxDownloads)
	b.WriteString("# Number of concurrent downloads (1-32, default: 3)\n")
	b.WriteString("# Mirrors often throttle parallel transfers from one client; keep this low\n\n")

	fmt.Fprintf(&b, "modules_dir: %q\n", gc.ModulesDir)
	b.WriteString("# Directory containing module descriptors (default: ./modules)\n\n")

	fmt.Fprintf(&b, "version_order: %q\n", gc.VersionOrder)
	b.WriteString("# How version directories are ordered before taking the latest (default: listing)\n")
	b.WriteString("# - listing: trust the server's listing order, latest is the last entry\n")
	b.WriteString("# - semver:  sort entries as versions, unparsable entries sort first\n\n")

	if gc.UserAgent != "" {
		fmt.Fprintf(&b, "user_agent: %q\n", gc.UserAgent)
		b.WriteString("# User-Agent header sent to web mirrors\n\n")
	}

	b.WriteString("timeouts:\n")
	fmt.Fprintf(&b, "  listing: %q\n", gc.Timeouts.Listing)
	b.WriteString("  # Bound on one remote directory listing (default: 30s)\n")
	fmt.Fprintf(&b, "  download: %q\n", gc.Timeouts.Download)
	b.WriteString("  # Bound on one image download, \"0\" means no limit (default: 0)\n\n")

	b.WriteString("# Logging configuration\n")
	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # Log verbosity level (default: info)\n")
	b.WriteString("  # - debug: Most verbose, shows listings and match decisions\n")
	b.WriteString("  # - info:  Normal output, shows resolutions and downloads\n")
	b.WriteString("  # - warn:  Only warnings and errors, minimal output\n")
	b.WriteString("  # - error: Only errors, very quiet operation\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Tee logs to this file in addition to stderr (overwritten on each run)\n")
	}

	return b.String()
}

// Validate checks the configuration for consistency
// Note: This should NOT set defaults - that's done in DefaultGlobalConfig()
func (gc *GlobalConfig) Validate() error {
	if gc.MaxDownloads < 1 || gc.MaxDownloads > 32 {
		log.Errorf("max_downloads must be between 1 and 32, got %d", gc.MaxDownloads)
		return fmt.Errorf("max_downloads must be between 1 and 32, got %d", gc.MaxDownloads)
	}

	if strings.TrimSpace(gc.DownloadDir) == "" {
		return fmt.Errorf("download_dir cannot be empty")
	}
	if strings.TrimSpace(gc.ModulesDir) == "" {
		return fmt.Errorf("modules_dir cannot be empty")
	}

	validOrders := []string{"listing", "semver"}
	if !slice.Contains(validOrders, gc.VersionOrder) {
		return fmt.Errorf("invalid version_order %q, must be one of: %s",
			gc.VersionOrder, strings.Join(validOrders, ", "))
	}

	if _, err := parseTimeout(gc.Timeouts.Listing); err != nil {
		return fmt.Errorf("timeouts.listing: %w", err)
	}
	if _, err := parseTimeout(gc.Timeouts.Download); err != nil {
		return fmt.Errorf("timeouts.download: %w", err)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}

	gc.Logging.File = strings.TrimSpace(gc.Logging.File)
	return security.ValidateStructStrings(gc, security.DefaultLimits())
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"iso-manager.yml",
		".iso-manager.yml",
		"iso-manager.yaml",
		".iso-manager.yaml",
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "iso-manager", "config.yml"),
			filepath.Join(homeDir, ".config", "iso-manager", "config.yaml"),
		)
	}

	return append(paths,
		"/etc/iso-manager/config.yml",
		"/etc/iso-manager/config.yaml",
	)
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Convenience functions that can be used anywhere in the codebase
func MaxDownloads() int {
	return Global().MaxDownloads
}

func DownloadDir() (string, error) {
	dir, err := filepath.Abs(Global().DownloadDir)
	if err != nil {
		log.Errorf("Failed to resolve download directory: %v", err)
		return "", fmt.Errorf("failed to resolve download directory: %w", err)
	}
	return dir, nil
}

func ModulesDir() (string, error) {
	dir, err := filepath.Abs(Global().ModulesDir)
	if err != nil {
		log.Errorf("Failed to resolve modules directory: %v", err)
		return "", fmt.Errorf("failed to resolve modules directory: %w", err)
	}
	return dir, nil
}

func VersionOrder() string {
	return Global().VersionOrder
}

func UserAgent() string {
	return Global().UserAgent
}

// ListingTimeout returns the listing bound; invalid values were rejected by
// Validate, so they fall back to the default here.
func ListingTimeout() time.Duration {
	d, err := parseTimeout(Global().Timeouts.Listing)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func DownloadTimeout() time.Duration {
	d, _ := parseTimeout(Global().Timeouts.Download)
	return d
}

func LogLevel() string {
	return Global().Logging.Level
}
