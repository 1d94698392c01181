package config

import (
	"os"
	"path/filepath"
)

var configExts = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig returns the .ccbuild.<ext> file that applies to dir,
// walking up until the first directory holding a project manifest or the
// filesystem root. It returns "" when there is none.
func FindLocalConfig(dir string) string {
	for {
		if path := localConfigIn(dir); path != "" {
			return path
		}

		if isProjectRoot(dir) {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

func localConfigIn(dir string) string {
	for _, ext := range configExts {
		path := filepath.Join(dir, ".ccbuild."+ext)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}

func isProjectRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, DefaultManifest))
	return err == nil && !info.IsDir()
}
