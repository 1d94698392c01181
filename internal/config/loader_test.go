package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "build"}
	cmd.Flags().String("root", "", "")
	cmd.Flags().String("build-dir", "", "")
	cmd.Flags().IntP("jobs", "j", 0, "")
	cmd.Flags().String("fingerprint", "", "")
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().Bool("explain", false, "")
	return cmd
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.userConfigDir)
}

func TestLoader_SetupViperDefaults(t *testing.T) {
	viper.Reset()
	loader := NewLoader()
	loader.setupViperDefaults()

	assert.Equal(t, ".", viper.GetString("project_root"))
	assert.Equal(t, "_build", viper.GetString("build_dir"))
	assert.Equal(t, "ccbuild.toml", viper.GetString("manifest"))
	assert.Equal(t, DefaultJobs(), viper.GetInt("jobs"))
	assert.Equal(t, "hash", viper.GetString("fingerprint"))
	assert.Equal(t, "info", viper.GetString("log_level"))
	assert.False(t, viper.GetBool("verbose"))
	assert.False(t, viper.GetBool("explain"))
}

func TestLoader_LoadGlobalConfig(t *testing.T) {
	base := t.TempDir()
	loader := &Loader{userConfigDir: func() (string, error) { return base, nil }}

	t.Run("loads yaml config", func(t *testing.T) {
		viper.Reset()
		writeFile(t, filepath.Join(base, "ccbuild", "config.yml"), "jobs: 6\nfingerprint: timestamp\n")
		defer os.Remove(filepath.Join(base, "ccbuild", "config.yml"))

		loader.loadGlobalConfig()

		assert.Equal(t, 6, viper.GetInt("jobs"))
		assert.Equal(t, "timestamp", viper.GetString("fingerprint"))
	})

	t.Run("loads toml config", func(t *testing.T) {
		viper.Reset()
		writeFile(t, filepath.Join(base, "ccbuild", "config.toml"), "log_level = \"debug\"\n")

		loader.loadGlobalConfig()

		assert.Equal(t, "debug", viper.GetString("log_level"))
	})

	t.Run("handles missing config dir gracefully", func(t *testing.T) {
		viper.Reset()

		broken := &Loader{userConfigDir: func() (string, error) { return "", errors.New("no home") }}

		assert.NotPanics(t, func() {
			broken.loadGlobalConfig()
		})
		assert.Equal(t, 0, viper.GetInt("jobs"))
	})
}

func TestLoader_LoadLocalConfig(t *testing.T) {
	t.Run("loads local config from directory", func(t *testing.T) {
		viper.Reset()

		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".ccbuild.yml"), "build_dir: out\nexplain: true\n")

		NewLoader().loadLocalConfig(dir)

		assert.Equal(t, "out", viper.GetString("build_dir"))
		assert.True(t, viper.GetBool("explain"))
	})

	t.Run("walks up directory tree to find config", func(t *testing.T) {
		viper.Reset()

		dir := t.TempDir()
		nested := filepath.Join(dir, "engine", "src")
		require.NoError(t, os.MkdirAll(nested, 0o755))
		writeFile(t, filepath.Join(dir, ".ccbuild.json"), `{"jobs": 2}`)

		NewLoader().loadLocalConfig(nested)

		assert.Equal(t, 2, viper.GetInt("jobs"))
	})
}

func TestLoader_Load(t *testing.T) {
	viper.Reset()

	base := t.TempDir()
	root := t.TempDir()

	writeFile(t, filepath.Join(base, "ccbuild", "config.yml"), "jobs: 6\nfingerprint: timestamp\nlog_level: warn\n")
	writeFile(t, filepath.Join(root, ".ccbuild.yml"), "jobs: 4\n")

	cmd := newTestCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root, "--explain"}))

	loader := &Loader{userConfigDir: func() (string, error) { return base, nil }}
	cfg, err := loader.Load(cmd)
	require.NoError(t, err)

	// Local config overrides global config, flags override both
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, 4, cfg.Jobs)
	assert.Equal(t, "timestamp", cfg.Fingerprint)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Explain)
	assert.Equal(t, filepath.Join(root, "_build"), cfg.BuildDir)

	viper.Reset()
	cmd = newTestCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root, "-j", "12"}))

	cfg, err = loader.Load(cmd)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Jobs)
}

func TestLoader_StartDir(t *testing.T) {
	loader := NewLoader()
	assert.Equal(t, ".", loader.startDir(nil))

	cmd := newTestCommand()
	assert.Equal(t, ".", loader.startDir(cmd))

	require.NoError(t, cmd.ParseFlags([]string{"--root", "/src/project"}))
	assert.Equal(t, "/src/project", loader.startDir(cmd))
}
