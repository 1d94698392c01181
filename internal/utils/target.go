package utils

import (
	"path/filepath"
	"strings"
)

// ObjectRelPath returns the path of source relative to root, suitable for
// placing its object under a build directory. Parent references are
// rewritten from ".." to "__" so that sources outside root cannot escape the
// build directory or collide with sources inside it.
func ObjectRelPath(root, source string) string {
	rel, err := filepath.Rel(root, source)
	if err != nil {
		// Different volume; keep the full path minus its volume
		rel = strings.TrimPrefix(source, filepath.VolumeName(source))
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			out = append(out, "__")
		default:
			out = append(out, p)
		}
	}

	return filepath.Join(out...)
}

// ObjectPath returns the object file path for source: the build directory,
// then the sanitised relative path, then the object extension appended to
// the file name.
func ObjectPath(buildDir, root, source, objExt string) string {
	return filepath.Join(buildDir, ObjectRelPath(root, source)) + objExt
}
