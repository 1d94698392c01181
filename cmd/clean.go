package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:          "clean",
	Short:        "Remove build outputs",
	Long:         `Remove the build directory, forcing the next build to start from scratch.`,
	RunE:         runClean,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Refuse to remove the sources along with the outputs
	if rel, err := filepath.Rel(cfg.BuildDir, cfg.ProjectRoot); err == nil && !escapes(rel) {
		return fmt.Errorf("refusing to remove %s: it contains the project root", cfg.BuildDir)
	}

	if _, err := os.Stat(cfg.BuildDir); os.IsNotExist(err) {
		console.Info("nothing to clean")
		return nil
	}

	if err := os.RemoveAll(cfg.BuildDir); err != nil {
		return fmt.Errorf("failed to remove build directory: %w", err)
	}

	console.Success("removed %s", cfg.BuildDir)
	return nil
}

// escapes reports whether a relative path leaves its base directory
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
