package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names bound to configuration keys
var flagKeys = map[string]string{
	"root":        "project_root",
	"build-dir":   "build_dir",
	"manifest":    "manifest",
	"jobs":        "jobs",
	"fingerprint": "fingerprint",
	"log-level":   "log_level",
	"verbose":     "verbose",
	"no-color":    "no_color",
	"explain":     "explain",
}

// Loader handles configuration loading from various sources
type Loader struct {
	// userConfigDir locates the global configuration directory
	userConfigDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{userConfigDir: os.UserConfigDir}
}

// Load loads configuration for a command. The local config is searched for
// from the project root given on the command line, or the working directory.
func (l *Loader) Load(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(l.startDir(cmd))
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("project_root", DefaultProjectRoot)
	viper.SetDefault("build_dir", DefaultBuildDir)
	viper.SetDefault("manifest", DefaultManifest)
	viper.SetDefault("jobs", DefaultJobs())
	viper.SetDefault("fingerprint", DefaultFingerprint)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("verbose", DefaultVerbose)
	viper.SetDefault("no_color", DefaultNoColor)
	viper.SetDefault("explain", DefaultExplain)
}

// loadGlobalConfig loads global configuration from the user config
// directory
func (l *Loader) loadGlobalConfig() {
	base, err := l.userConfigDir()
	if err != nil || base == "" {
		return
	}

	globalDir := filepath.Join(base, "ccbuild")

	for _, ext := range configExts {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.MergeInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration found from dir upwards
func (l *Loader) loadLocalConfig(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return // silently ignore, config.Load() will handle validation
	}

	localPath := FindLocalConfig(abs)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

func (l *Loader) startDir(cmd *cobra.Command) string {
	if cmd != nil {
		if f := cmd.Flags().Lookup("root"); f != nil && f.Changed {
			return f.Value.String()
		}
	}

	return "."
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
