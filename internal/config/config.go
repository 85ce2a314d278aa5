package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lyallcooper/dupdeleter/internal/fingerprint"
	"github.com/lyallcooper/dupdeleter/internal/scan"
)

// Config holds all application configuration
type Config struct {
	Port          int
	DBPath        string
	AllowedPaths  []string // Scan roots must live under one of these; empty = unrestricted
	RetentionDays int

	// RetentionDaysFromEnv locks retention against changes through the API
	RetentionDaysFromEnv bool

	Strategy   string
	GridWidth  int
	GridHeight int
	Threshold  int
	Extensions []string
	Workers    int

	DrainInterval time.Duration
	ScanTimeout   time.Duration

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:          getEnvInt("DUPDELETER_PORT", 8080),
		DBPath:        ExpandPath(getEnv("DUPDELETER_DB_PATH", "./data/dupdeleter.db")),
		AllowedPaths:  getEnvPaths("DUPDELETER_ALLOWED_PATHS"),
		RetentionDays: getEnvInt("DUPDELETER_RETENTION_DAYS", 30),

		Strategy:   getEnv("DUPDELETER_STRATEGY", fingerprint.KindPerceptual.String()),
		GridWidth:  getEnvInt("DUPDELETER_GRID_WIDTH", fingerprint.DefaultGridWidth),
		GridHeight: getEnvInt("DUPDELETER_GRID_HEIGHT", fingerprint.DefaultGridHeight),
		Threshold:  getEnvInt("DUPDELETER_THRESHOLD", fingerprint.DefaultThreshold),
		Extensions: getEnvList("DUPDELETER_EXTENSIONS", scan.DefaultExtensions),
		Workers:    getEnvInt("DUPDELETER_WORKERS", runtime.GOMAXPROCS(0)),

		DrainInterval: getEnvDuration("DUPDELETER_DRAIN_INTERVAL", 250*time.Millisecond),
		ScanTimeout:   getEnvDuration("DUPDELETER_SCAN_TIMEOUT", 0),

		LogLevel: getEnv("DUPDELETER_LOG_LEVEL", "info"),
		LogFile:  getEnv("DUPDELETER_LOG_FILE", ""),
	}
	cfg.RetentionDaysFromEnv = os.Getenv("DUPDELETER_RETENTION_DAYS") != ""
	return cfg
}

// StrategyConfig builds and validates the fingerprint configuration
func (c *Config) StrategyConfig() (fingerprint.Config, error) {
	kind, err := fingerprint.ParseKind(c.Strategy)
	if err != nil {
		return fingerprint.Config{}, err
	}
	fc := fingerprint.Config{
		Kind:       kind,
		GridWidth:  c.GridWidth,
		GridHeight: c.GridHeight,
		Threshold:  c.Threshold,
	}
	if err := fc.Validate(); err != nil {
		return fingerprint.Config{}, err
	}
	return fc, nil
}

// IsPathAllowed reports whether path is inside one of the allowed roots
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	path = filepath.Clean(path)
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading ~ to the home directory and cleans the result
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// getEnvPaths is getEnvList with ~ expansion, nil when unset
func getEnvPaths(key string) []string {
	var paths []string
	for _, p := range getEnvList(key, nil) {
		paths = append(paths, ExpandPath(p))
	}
	return paths
}
