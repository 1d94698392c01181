package command

import (
	"sort"
	"strings"
)

// Quote wraps s in double quotes if it contains a blank
func Quote(s string) string {
	if !strings.ContainsAny(s, " \t") {
		return s
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s
	}

	return `"` + s + `"`
}

// Aggregate joins a flag set in sorted order. Flags are not quoted since a
// single flag may carry its own argument, e.g. "-include path".
func Aggregate(flags []string) string {
	return strings.Join(sortedUnique(flags), " ")
}

// AggregatePaths joins paths in the given order, quoting each one
func AggregatePaths(paths []string) string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}

		out = append(out, Quote(p))
	}

	return strings.Join(out, " ")
}

// AggregateSortedPaths joins a path set in sorted order, quoting each one
func AggregateSortedPaths(paths []string) string {
	return AggregatePaths(sortedUnique(paths))
}

// AggregateWithPrefix joins a directory set in sorted order with prefix
// applied to every entry
func AggregateWithPrefix(prefix string, dirs []string) string {
	sorted := sortedUnique(dirs)

	out := make([]string, 0, len(sorted))
	for _, d := range sorted {
		out = append(out, prefix+Quote(d))
	}

	return strings.Join(out, " ")
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))

	for _, s := range in {
		if s == "" {
			continue
		}

		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	sort.Strings(out)
	return out
}
