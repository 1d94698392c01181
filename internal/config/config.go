package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

// Default configuration values
const (
	DefaultProjectRoot = "."
	DefaultBuildDir    = "_build"
	DefaultManifest    = "ccbuild.toml"
	DefaultFingerprint = "hash"
	DefaultLogLevel    = "info"
	DefaultVerbose     = false
	DefaultNoColor     = false
	DefaultExplain     = false
)

// DefaultJobs is the worker count used when none is configured
func DefaultJobs() int {
	return runtime.NumCPU()
}

// Holds the configuration options for ccbuild
type Config struct {
	// Directory declarations are relative to
	ProjectRoot string

	// Root of all build outputs. Relative paths are resolved against
	// ProjectRoot.
	BuildDir string

	// Project manifest. Relative paths are resolved against ProjectRoot.
	Manifest string

	// Worker pool size
	Jobs int

	// Signature mode: hash or timestamp
	Fingerprint string
	// Parsed signature mode
	Mode fingerprint.Mode

	LogLevel string
	// Parsed log level
	Level slog.Level

	// Enable verbose output
	Verbose bool

	// Disable colored console output
	NoColor bool

	// Log why each target or generator is rebuilt
	Explain bool
}

func Load() (*Config, error) {
	cfg := &Config{
		ProjectRoot: viper.GetString("project_root"),
		BuildDir:    viper.GetString("build_dir"),
		Manifest:    viper.GetString("manifest"),
		Jobs:        viper.GetInt("jobs"),
		Fingerprint: viper.GetString("fingerprint"),
		LogLevel:    viper.GetString("log_level"),
		Verbose:     viper.GetBool("verbose"),
		NoColor:     viper.GetBool("no_color"),
		Explain:     viper.GetBool("explain"),
	}

	// Apply defaults if not set
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = DefaultProjectRoot
	}

	if cfg.BuildDir == "" {
		cfg.BuildDir = DefaultBuildDir
	}

	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	if cfg.Jobs == 0 {
		cfg.Jobs = DefaultJobs()
	}

	if cfg.Fingerprint == "" {
		cfg.Fingerprint = DefaultFingerprint
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	root, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return fmt.Errorf("invalid project root: %v", err)
	}

	c.ProjectRoot = root

	if !filepath.IsAbs(c.BuildDir) {
		c.BuildDir = filepath.Join(root, c.BuildDir)
	}

	if !filepath.IsAbs(c.Manifest) {
		c.Manifest = filepath.Join(root, c.Manifest)
	}

	if c.Jobs < 1 {
		return fmt.Errorf("invalid job count: %d", c.Jobs)
	}

	mode, err := fingerprint.ParseMode(c.Fingerprint)
	if err != nil {
		return fmt.Errorf("invalid fingerprint mode: %s", c.Fingerprint)
	}

	c.Mode = mode

	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return err
	}

	c.Level = level

	// Verbose output implies debug logging
	if c.Verbose {
		c.Level = slog.LevelDebug
	}

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}
