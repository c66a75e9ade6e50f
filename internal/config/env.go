package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

var log = logger.Logger()

// EnvFile is the optional dotenv file read next to the config file.
const EnvFile = ".env"

// Environment variables overriding config file values.
const (
	EnvDownloadDir  = "ISO_MANAGER_DOWNLOAD_DIR"
	EnvMaxDownloads = "ISO_MANAGER_MAX_DOWNLOADS"
	EnvModulesDir   = "ISO_MANAGER_MODULES_DIR"
)

// applyEnv overlays values from envFile (if present) and then from the
// process environment, which wins.
func (gc *GlobalConfig) applyEnv(envFile string) error {
	values := map[string]string{}
	if _, err := os.Stat(envFile); err == nil {
		fileValues, err := godotenv.Read(envFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", envFile, err)
		}
		values = fileValues
		log.Debugf("Loaded environment overrides from %s", envFile)
	}
	for _, key := range []string{EnvDownloadDir, EnvMaxDownloads, EnvModulesDir} {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	if v := strings.TrimSpace(values[EnvDownloadDir]); v != "" {
		gc.DownloadDir = v
	}
	if v := strings.TrimSpace(values[EnvModulesDir]); v != "" {
		gc.ModulesDir = v
	}
	if v := strings.TrimSpace(values[EnvMaxDownloads]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxDownloads, v, err)
		}
		gc.MaxDownloads = n
	}
	return nil
}
