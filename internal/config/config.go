// Package config provides configuration management for graphtag.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultThresholdPercentile is the pruning percentile used when none is configured.
	DefaultThresholdPercentile = 97.5
	// DefaultPattern selects record files in the input directory.
	DefaultPattern = "*.json"
	// DefaultHTTPPort is the port of the serve command.
	DefaultHTTPPort = 37820
	// DefaultDBDriver is the run store backend.
	DefaultDBDriver = "sqlite"
	// OutputFileName is the name of the persisted component map.
	OutputFileName = "connected_components.json"
)

// Config holds graphtag settings.
type Config struct {
	InputDir            string  `json:"GRAPHTAG_INPUT_DIR"`
	OutputDir           string  `json:"GRAPHTAG_OUTPUT_DIR"`
	Pattern             string  `json:"GRAPHTAG_PATTERN"`
	DBDriver            string  `json:"GRAPHTAG_DB_DRIVER"`
	DBPath              string  `json:"GRAPHTAG_DB_PATH"`
	DBDSN               string  `json:"GRAPHTAG_DB_DSN"`
	LogLevel            string  `json:"GRAPHTAG_LOG_LEVEL"`
	ThresholdPercentile float64 `json:"GRAPHTAG_THRESHOLD_PERCENTILE"`
	Workers             int     `json:"GRAPHTAG_WORKERS"`
	HTTPPort            int     `json:"GRAPHTAG_HTTP_PORT"`
	MaxConns            int     `json:"GRAPHTAG_MAX_CONNS"`
	CountTokens         bool    `json:"GRAPHTAG_COUNT_TOKENS"`
}

var (
	cached     *Config
	cachedOnce sync.Once
)

// DataDir returns the graphtag data directory (~/.graphtag).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".graphtag")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// DBPath returns the default run store path.
func DBPath() string {
	return filepath.Join(DataDir(), "graphtag.db")
}

// ProfilesPath returns the corpus profiles file path.
func ProfilesPath() string {
	return filepath.Join(DataDir(), "profiles.yml")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		InputDir:            filepath.Join("data", "results"),
		OutputDir:           "data",
		Pattern:             DefaultPattern,
		ThresholdPercentile: DefaultThresholdPercentile,
		Workers:             0,
		HTTPPort:            DefaultHTTPPort,
		DBDriver:            DefaultDBDriver,
		DBPath:              DBPath(),
		MaxConns:            4,
		CountTokens:         true,
		LogLevel:            "info",
	}
}

// OutputPath returns the component map file inside OutputDir.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, OutputFileName)
}

// EnsureDataDir creates the data directory if it does not exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings.json over the defaults, then applies environment overrides.
// A missing or unparsable settings file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			log.Warn().Err(jsonErr).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
			cfg = Default()
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// Get returns the configuration loaded on first use.
// A load error falls back to the defaults.
func Get() *Config {
	cachedOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
			cfg = Default()
		}
		cached = cfg
	})
	return cached
}

// applyEnv overrides settings with GRAPHTAG_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GRAPHTAG_INPUT_DIR"); v != "" {
		cfg.InputDir = v
	}
	if v := os.Getenv("GRAPHTAG_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("GRAPHTAG_PATTERN"); v != "" {
		cfg.Pattern = v
	}
	if v := os.Getenv("GRAPHTAG_DB_DRIVER"); v != "" {
		cfg.DBDriver = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHTAG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GRAPHTAG_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("GRAPHTAG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRAPHTAG_THRESHOLD_PERCENTILE"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThresholdPercentile = p
		} else {
			log.Warn().Str("env_value", v).Msg("Invalid GRAPHTAG_THRESHOLD_PERCENTILE, ignoring")
		}
	}
	if v := os.Getenv("GRAPHTAG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("GRAPHTAG_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("GRAPHTAG_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("GRAPHTAG_COUNT_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CountTokens = b
		}
	}
}
