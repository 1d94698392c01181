// Package staleness compares a previous build record against the current
// declaration. All functions are pure.
package staleness

import (
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

// State is the classification of a path set diff
type State int

const (
	NoChange State = iota
	Removed
	Added
	Updated
)

func (s State) String() string {
	switch s {
	case NoChange:
		return "no change"
	case Removed:
		return "removed"
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// DiffPaths classifies the change from prev to cur.
//
// Removed wins over every other state. Otherwise the first added or updated
// path in name order decides. A path is updated when its signature is
// strictly newer (timestamp mode) or different (hash mode).
func DiffPaths(prev, cur fingerprint.Set, mode fingerprint.Mode) State {
	for name := range prev {
		if _, ok := cur[name]; !ok {
			return Removed
		}
	}

	for _, name := range cur.Names() {
		prevSig, ok := prev[name]
		if !ok {
			return Added
		}

		if Newer(prevSig, cur[name], mode) {
			return Updated
		}
	}

	return NoChange
}

// Newer reports whether cur is a changed signature relative to prev
func Newer(prev, cur uint64, mode fingerprint.Mode) bool {
	if mode == fingerprint.ModeTimestamp {
		return cur > prev
	}

	return cur != prev
}

// StringsChanged compares two string sets, ignoring order and duplicates
func StringsChanged(prev, cur []string) bool {
	a, b := uniqueSorted(prev), uniqueSorted(cur)
	if len(a) != len(b) {
		return true
	}

	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}

	return false
}

// OrderedChanged compares two ordered lists
func OrderedChanged(prev, cur []string) bool {
	if len(prev) != len(cur) {
		return true
	}

	for i := range prev {
		if prev[i] != cur[i] {
			return true
		}
	}

	return false
}

// Explain renders a unified diff between two string sets, labelled with
// label. It returns an empty string when they are equal.
func Explain(label string, prev, cur []string) string {
	a, b := uniqueSorted(prev), uniqueSorted(cur)
	if !StringsChanged(a, b) {
		return ""
	}

	diff := difflib.UnifiedDiff{
		A:        lines(a),
		B:        lines(b),
		FromFile: label + " (previous)",
		ToFile:   label + " (current)",
		Context:  1,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}

	return text
}

// ExplainPaths renders a diff of two path sets including their signatures
func ExplainPaths(label string, prev, cur fingerprint.Set) string {
	return Explain(label, describe(prev), describe(cur))
}

func describe(s fingerprint.Set) []string {
	out := make([]string, 0, len(s))
	for _, p := range s.Paths() {
		out = append(out, fmt.Sprintf("%s %016x", p.Name, p.Signature))
	}

	return out
}

func lines(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s + "\n"
	}

	return out
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))

	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	sort.Strings(out)
	return out
}
