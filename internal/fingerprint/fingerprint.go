// Package fingerprint pairs filesystem paths with change signatures.
//
// A signature is either the xxhash64 of the file contents (the default) or
// the modification time in nanoseconds. Path identity is the pathname
// alone; the signature is metadata compared separately by the staleness
// package.
package fingerprint

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when an existing path does not resolve
var ErrNotFound = errors.New("file not found")

// Mode selects how signatures are computed
type Mode int

const (
	// ModeHash uses a content hash
	ModeHash Mode = iota
	// ModeTimestamp uses the modification time
	ModeTimestamp
)

func (m Mode) String() string {
	switch m {
	case ModeHash:
		return "hash"
	case ModeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as used in configuration
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hash", "content":
		return ModeHash, nil
	case "timestamp", "mtime":
		return ModeTimestamp, nil
	default:
		return ModeHash, fmt.Errorf("unknown fingerprint mode: %s", s)
	}
}

// Path is a pathname paired with its signature
type Path struct {
	Name      string
	Signature uint64
}

// Equal reports whether p and o name the same file
func (p Path) Equal(o Path) bool {
	return p.Name == o.Name
}

// CreateNew builds a Path from a trusted signature, typically one read back
// from a build record. The file does not need to exist.
func CreateNew(name string, signature uint64) Path {
	return Path{Name: Normalize(name), Signature: signature}
}

// Normalize cleans a pathname into the form used as identity
func Normalize(name string) string {
	return filepath.Clean(filepath.FromSlash(name))
}

// Set is a set of fingerprinted paths keyed by pathname
type Set map[string]uint64

// NewSet builds a set from paths
func NewSet(paths ...Path) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}

	return s
}

// Add inserts p, replacing the signature of an equal path
func (s Set) Add(p Path) {
	s[p.Name] = p.Signature
}

// Contains reports whether a path with name is in the set
func (s Set) Contains(name string) bool {
	_, ok := s[Normalize(name)]
	return ok
}

// Names returns the pathnames in sorted order
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Paths returns the paths sorted by name
func (s Set) Paths() []Path {
	paths := make([]Path, 0, len(s))
	for _, name := range s.Names() {
		paths = append(paths, Path{Name: name, Signature: s[name]})
	}

	return paths
}

// Clone returns a copy of s
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}

	c := make(Set, len(s))
	for k, v := range s {
		c[k] = v
	}

	return c
}

// PathSet holds the user-declared side of a path collection. The declared
// paths may not exist yet; Convert verifies them right before a check.
type PathSet struct {
	user []string
	seen map[string]struct{}
}

// Add declares a path. It returns false if the path was already declared.
func (ps *PathSet) Add(name string) bool {
	name = Normalize(name)

	if ps.seen == nil {
		ps.seen = make(map[string]struct{})
	}

	if _, ok := ps.seen[name]; ok {
		return false
	}

	ps.seen[name] = struct{}{}
	ps.user = append(ps.user, name)
	return true
}

// User returns the declared paths in declaration order
func (ps *PathSet) User() []string {
	out := make([]string, len(ps.user))
	copy(out, ps.user)
	return out
}

// Len returns the number of declared paths
func (ps *PathSet) Len() int {
	return len(ps.user)
}

// Convert fingerprints every declared path. Every path must exist.
func (ps *PathSet) Convert(fp *Fingerprinter) (Set, error) {
	return fp.CreateExistingAll(ps.user)
}
