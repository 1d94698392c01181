// Package target implements compiled build targets.
//
// A Target is declared (sources, headers, flags, libraries), locked by
// Build, and then executed as a task subgraph: an optional pch task, a
// compile task that spawns one child per stale source, and a link task.
// Each step compares the current declaration with the build record of the
// previous run and only runs the toolchain when something changed.
package target

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Norgate-AV/ccbuild/internal/buildenv"
	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
	"github.com/Norgate-AV/ccbuild/internal/toolchain"
)

// State is the lifecycle state of a target
type State int32

const (
	Unlocked State = iota
	Locked
	PchPending
	NoPch
	CompilePending
	LinkPending
	Built
	Failed
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case PchPending:
		return "pch pending"
	case NoPch:
		return "no pch"
	case CompilePending:
		return "compile pending"
	case LinkPending:
		return "link pending"
	case Built:
		return "built"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Target is an executable, static library or dynamic library
type Target struct {
	name      string
	typ       record.TargetType
	tc        *toolchain.Toolchain
	env       *buildenv.Context
	logger    *slog.Logger
	templates toolchain.Templates
	config    toolchain.Config

	rootDir  string
	buildDir string
	output   string
	store    *record.Store

	// mu guards the declaration and the lock
	mu     sync.Mutex
	locked bool

	state atomic.Int32

	sources     fingerprint.PathSet
	headers     fingerprint.PathSet
	pchs        fingerprint.PathSet
	libDeps     fingerprint.PathSet
	compileDeps fingerprint.PathSet
	linkDeps    fingerprint.PathSet

	externalLibDeps []string
	includeDirs     []string
	libDirs         []string
	flags           map[FlagKind][]string
	deps            []taskgraph.Unit

	// Computed by Build
	objects     map[string]*object
	sourceOrder []string
	pch         *pchData
	linkCommand string
	prev        *record.Target

	run runState
}

// New creates a target. rootDir is the directory declarations are relative
// to; a relative rootDir is resolved against the project root.
func New(name string, typ record.TargetType, tc *toolchain.Toolchain, env *buildenv.Context, rootDir string) (*Target, error) {
	if name == "" {
		return nil, builderr.Configf("", "target name must not be empty")
	}

	if !typ.IsBuildable() {
		return nil, builderr.Configf(name, "invalid target type: %s", typ)
	}

	if tc == nil {
		return nil, builderr.Configf(name, "target requires a toolchain")
	}

	if env == nil {
		return nil, builderr.Configf(name, "target requires a build context")
	}

	templates, ok := tc.Templates(typ)
	if !ok {
		return nil, builderr.Configf(name, "toolchain %s has no %s templates", tc.Name(), typ)
	}

	buildDir := filepath.Join(env.BuildDir(), tc.Name(), name)

	t := &Target{
		name:      name,
		typ:       typ,
		tc:        tc,
		env:       env,
		logger:    env.Logger().With("target", name),
		templates: templates,
		config:    tc.Config(),
		rootDir:   env.Resolve(rootDir),
		buildDir:  buildDir,
		output:    filepath.Join(buildDir, name+templates.OutputExt),
		store:     record.NewStore(buildDir, name),
		flags:     make(map[FlagKind][]string),
	}

	for kind, defaults := range map[FlagKind][]string{
		CommonCompileFlag: templates.CommonCompileFlags,
		CCompileFlag:      templates.CCompileFlags,
		CppCompileFlag:    templates.CppCompileFlags,
		LinkFlag:          templates.LinkFlags,
	} {
		for _, f := range defaults {
			t.flags[kind] = appendUnique(t.flags[kind], f)
		}
	}

	return t, nil
}

// Name returns the target name
func (t *Target) Name() string {
	return t.name
}

// Type returns the target kind
func (t *Target) Type() record.TargetType {
	return t.typ
}

// Toolchain returns the toolchain
func (t *Target) Toolchain() *toolchain.Toolchain {
	return t.tc
}

// RootDir returns the absolute directory declarations are relative to
func (t *Target) RootDir() string {
	return t.rootDir
}

// IntermediateDir returns the directory owned by this target
func (t *Target) IntermediateDir() string {
	return t.buildDir
}

// OutputPath returns the path of the linked artifact
func (t *Target) OutputPath() string {
	return t.output
}

// RecordPath returns the path of the persisted build record
func (t *Target) RecordPath() string {
	return t.store.Path()
}

// State returns the lifecycle state
func (t *Target) State() State {
	return State(t.state.Load())
}

func (t *Target) setState(s State) {
	t.state.Store(int32(s))
}

// IsLocked reports whether Build has been called
func (t *Target) IsLocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.locked
}

// mutate runs fn while the target is still unlocked
func (t *Target) mutate(op string, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.locked {
		return builderr.Config(t.name, op, builderr.ErrLocked)
	}

	return fn()
}

// resolve makes a declared path absolute relative to the target root
func (t *Target) resolve(path string) string {
	if filepath.IsAbs(path) {
		return fingerprint.Normalize(path)
	}

	return fingerprint.Normalize(filepath.Join(t.rootDir, path))
}

func (t *Target) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.typ)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}

	return append(list, s)
}
