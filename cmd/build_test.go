package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/command/commandtest"
	"github.com/Norgate-AV/ccbuild/internal/output"
	"github.com/Norgate-AV/ccbuild/internal/target"
)

const manifest = `
[[target]]
name = "hello"
type = "executable"
sources = ["main.cpp", "greet.cpp"]
`

// produce creates the file each command names as its output
func produce(cmd string) *command.Result {
	fields := strings.Fields(cmd)
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "-o" {
			_ = os.MkdirAll(filepath.Dir(fields[i+1]), 0o755)
			_ = os.WriteFile(fields[i+1], []byte(cmd), 0o644)
		}
	}

	return nil
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}

	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)

	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// newProject writes a project and routes every command to a recorder
func newProject(t *testing.T) (string, *commandtest.Recorder) {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"ccbuild.toml": manifest,
		"main.cpp":     "int main() { return greet(); }",
		"greet.cpp":    "int greet() { return 0; }",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	rec := &commandtest.Recorder{Handler: produce}

	prevExec, prevConsole := newExecutor, console
	newExecutor = func() command.Executor { return rec }
	console = output.NewConsoleTo(&bytes.Buffer{}, &bytes.Buffer{})

	t.Cleanup(func() {
		newExecutor, console = prevExec, prevConsole
		viper.Reset()
		resetFlags(rootCmd)
		rootCmd.SetOut(nil)
	})

	return dir, rec
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	viper.Reset()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestRunBuild(t *testing.T) {
	dir, rec := newProject(t)

	require.NoError(t, execute(t, "build", "--root", dir, "-j", "2", "--log-level", "error"))
	assert.Equal(t, 2, rec.Count(" -c "))
	assert.Equal(t, 1, rec.Count("-o "+filepath.Join(dir, "_build", "gcc", "hello", "hello")))

	rec.Reset()
	require.NoError(t, execute(t, "--root", dir, "--log-level", "error"), "root command builds")
	assert.Empty(t, rec.Calls())
}

func TestRunBuild_Failure(t *testing.T) {
	dir, rec := newProject(t)

	fail := commandtest.FailOn("greet.cpp")
	rec.Handler = func(cmd string) *command.Result {
		if res := fail(cmd); res != nil && strings.Contains(cmd, " -c ") {
			return res
		}

		return produce(cmd)
	}

	err := execute(t, "build", "--root", dir, "--log-level", "error")
	assert.ErrorIs(t, err, errBuildFailed)
	assert.Equal(t, 0, rec.Count("-o "+filepath.Join(dir, "_build", "gcc", "hello", "hello")))
}

func TestRunBuild_MissingManifest(t *testing.T) {
	dir, _ := newProject(t)

	err := execute(t, "build", "--root", dir, "--manifest", "other.toml")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errBuildFailed)
}

func TestRunCommands(t *testing.T) {
	dir, rec := newProject(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)

	require.NoError(t, execute(t, "commands", "--root", dir, "--log-level", "error"))
	assert.Empty(t, rec.Calls(), "nothing is executed")

	var cmds []target.CompileCommand
	require.NoError(t, json.Unmarshal(out.Bytes(), &cmds))
	require.Len(t, cmds, 2)
	assert.Equal(t, filepath.Join(dir, "greet.cpp"), cmds[0].Source)
	assert.Equal(t, filepath.Join(dir, "main.cpp"), cmds[1].Source)
	assert.Equal(t, dir, cmds[0].Directory)

	path := filepath.Join(t.TempDir(), "compile_commands.json")
	require.NoError(t, execute(t, "commands", "--root", dir, "--log-level", "error", "-o", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, out.String(), string(data))
}

func TestRunClean(t *testing.T) {
	dir, _ := newProject(t)

	require.NoError(t, execute(t, "build", "--root", dir, "--log-level", "error"))
	assert.DirExists(t, filepath.Join(dir, "_build"))

	require.NoError(t, execute(t, "clean", "--root", dir))
	assert.NoDirExists(t, filepath.Join(dir, "_build"))

	require.NoError(t, execute(t, "clean", "--root", dir), "cleaning twice is fine")

	err := execute(t, "clean", "--root", filepath.Join(dir, "sub"), "--build-dir", dir)
	assert.ErrorContains(t, err, "refusing")
}

func TestEscapes(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{"..", true},
		{filepath.Join("..", "src"), true},
		{".", false},
		{"src", false},
		{"..src", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapes(tt.rel), "escapes(%q)", tt.rel)
	}
}
