package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccbuild/internal/output"
	"github.com/Norgate-AV/ccbuild/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "ccbuild",
	Short: "Incremental C/C++ build engine",
	Long: `Build the C and C++ targets and code generators declared in ccbuild.toml,
recompiling and relinking only what changed since the last build.`,
	RunE:          runBuild,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
}

var console = output.NewConsole()

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// Failed units have already been reported
		if !errors.Is(err, errBuildFailed) {
			console.Error("%v", err)
		}

		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	flags := rootCmd.PersistentFlags()
	flags.String("root", "", "Project root directory (default: current directory)")
	flags.String("build-dir", "", "Build output directory, relative to the project root (default: _build)")
	flags.StringP("manifest", "m", "", "Project manifest, relative to the project root (default: ccbuild.toml)")
	flags.IntP("jobs", "j", 0, "Number of parallel jobs (default: number of CPUs)")
	flags.String("fingerprint", "", "File signature mode: hash or timestamp")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("explain", false, "Log why each target or generator is rebuilt")

	rootCmd.AddCommand(buildCmd, cleanCmd, commandsCmd)
}
