// Package generator runs declared commands that produce files, such as
// code generators, and reruns each one only when its inputs, outputs,
// commands or blob change.
package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Norgate-AV/ccbuild/internal/buildenv"
	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
)

// Default pattern keys
const (
	ProjectRootDir  = "project_root_dir"
	ProjectBuildDir = "project_build_dir"
	GenRootDir      = "gen_root_dir"
	GenBuildDir     = "gen_build_dir"
)

// State is the lifecycle state of a generator
type State int32

const (
	Unlocked State = iota
	Locked
	Running
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IDSpec declares one generator ID. Paths and commands may use the
// generator's patterns; commands may also use {inputs} and {outputs}.
type IDSpec struct {
	Inputs   []string
	Outputs  []string
	Commands []string
	Blob     BlobHandler

	// Parallel IDs may run alongside other IDs of the generator
	Parallel bool
}

type id struct {
	name     string
	inputs   fingerprint.PathSet
	outputs  []string
	commands []string
	blob     BlobHandler
	blobData []byte
	parallel bool
	group    string
}

// Generator is a set of IDs that run commands
type Generator struct {
	name     string
	env      *buildenv.Context
	logger   *slog.Logger
	rootDir  string
	buildDir string
	store    *record.Store

	mu       sync.Mutex
	locked   bool
	patterns *command.Builder

	ids        map[string]*id
	order      []string
	groups     map[string][]string
	groupOrder []string
	callbacks  []func(d *Dependencies) error
	deps       []taskgraph.Unit

	state atomic.Int32

	// Computed by Build
	units  []*unit
	byUnit map[string]*unit
	edges  map[string][]string
	prev   *record.Generator

	run runState
}

// New creates a generator. rootDir is relative to the project root or
// absolute; the build directory is <build dir>/<name>.
func New(name string, env *buildenv.Context, rootDir string) (*Generator, error) {
	if name == "" {
		return nil, builderr.Configf("", "generator name must not be empty")
	}

	if env == nil {
		return nil, builderr.Configf(name, "generator requires a build context")
	}

	g := &Generator{
		name:     name,
		env:      env,
		logger:   env.Logger().With("generator", name),
		rootDir:  env.Resolve(rootDir),
		buildDir: filepath.Join(env.BuildDir(), name),
		patterns: command.NewBuilder(),
		ids:      make(map[string]*id),
		groups:   make(map[string][]string),
	}
	g.store = record.NewStore(g.buildDir, name)

	for key, value := range map[string]string{
		ProjectRootDir:  env.RootDir(),
		ProjectBuildDir: env.BuildDir(),
		GenRootDir:      g.rootDir,
		GenBuildDir:     g.buildDir,
	} {
		if err := g.patterns.AddDefault(key, value); err != nil {
			return nil, builderr.Config(name, "add default pattern", err)
		}
	}

	return g, nil
}

// Name returns the generator name
func (g *Generator) Name() string {
	return g.name
}

// RootDir returns the absolute directory commands run in
func (g *Generator) RootDir() string {
	return g.rootDir
}

// BuildDir returns the directory owned by this generator
func (g *Generator) BuildDir() string {
	return g.buildDir
}

// RecordPath returns the path of the persisted record
func (g *Generator) RecordPath() string {
	return g.store.Path()
}

// State returns the lifecycle state
func (g *Generator) State() State {
	return State(g.state.Load())
}

func (g *Generator) setState(s State) {
	g.state.Store(int32(s))
}

func (g *Generator) mutate(op string, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked {
		return builderr.Config(g.name, op, builderr.ErrLocked)
	}

	return fn()
}

// AddPattern adds a pattern usable in IDs declared afterwards
func (g *Generator) AddPattern(key, value string) error {
	return g.mutate("add pattern", func() error {
		if err := g.patterns.AddDefault(key, value); err != nil {
			return builderr.Config(g.name, "add pattern", err)
		}

		return nil
	})
}

// Expand substitutes the generator's patterns in s
func (g *Generator) Expand(s string) (string, error) {
	out, err := g.patterns.Construct(s, nil)
	if err != nil {
		return "", builderr.Config(g.name, "expand "+s, err)
	}

	return out, nil
}

// AddID declares an ID
func (g *Generator) AddID(name string, spec IDSpec) error {
	return g.mutate("add id", func() error {
		if name == "" {
			return builderr.Configf(g.name, "id name must not be empty")
		}

		if _, ok := g.ids[name]; ok {
			return builderr.Configf(g.name, "duplicate id %q", name)
		}

		if _, ok := g.groups[name]; ok {
			return builderr.Configf(g.name, "id %q clashes with a group", name)
		}

		if len(spec.Commands) == 0 {
			return builderr.Configf(g.name, "id %q has no commands", name)
		}

		entry := &id{name: name, blob: spec.Blob, parallel: spec.Parallel}

		for _, in := range spec.Inputs {
			path, err := g.expandPath(in)
			if err != nil {
				return err
			}

			entry.inputs.Add(path)
		}

		seen := make(map[string]struct{}, len(spec.Outputs))
		for _, out := range spec.Outputs {
			path, err := g.expandPath(out)
			if err != nil {
				return err
			}

			if _, ok := seen[path]; ok {
				continue
			}

			seen[path] = struct{}{}
			entry.outputs = append(entry.outputs, path)
		}

		sort.Strings(entry.outputs)

		bindings := map[string]string{
			"inputs":  command.AggregateSortedPaths(entry.inputs.User()),
			"outputs": command.AggregatePaths(entry.outputs),
		}

		for _, c := range spec.Commands {
			cmd, err := g.patterns.Construct(c, bindings)
			if err != nil {
				return builderr.Config(g.name, fmt.Sprintf("construct command of id %q", name), err)
			}

			entry.commands = append(entry.commands, command.Tidy(cmd))
		}

		g.ids[name] = entry
		g.order = append(g.order, name)
		return nil
	})
}

// expandPath expands patterns and resolves the result against the
// generator root
func (g *Generator) expandPath(p string) (string, error) {
	out, err := g.patterns.Construct(p, nil)
	if err != nil {
		return "", builderr.Config(g.name, "expand "+p, err)
	}

	if !filepath.IsAbs(out) {
		out = filepath.Join(g.rootDir, out)
	}

	return fingerprint.Normalize(out), nil
}

// AddGroup makes ids run as one unit. If any member is stale every member
// reruns, in declaration order.
func (g *Generator) AddGroup(name string, ids ...string) error {
	return g.mutate("add group", func() error {
		if name == "" {
			return builderr.Configf(g.name, "group name must not be empty")
		}

		if _, ok := g.groups[name]; ok {
			return builderr.Configf(g.name, "duplicate group %q", name)
		}

		if _, ok := g.ids[name]; ok {
			return builderr.Configf(g.name, "group %q clashes with an id", name)
		}

		if len(ids) == 0 {
			return builderr.Configf(g.name, "group %q has no ids", name)
		}

		for _, n := range ids {
			entry, ok := g.ids[n]
			if !ok {
				return builderr.Configf(g.name, "group %q references unknown id %q", name, n)
			}

			if entry.group != "" {
				return builderr.Configf(g.name, "id %q already belongs to group %q", n, entry.group)
			}
		}

		for _, n := range ids {
			g.ids[n].group = name
		}

		g.groups[name] = append([]string(nil), ids...)
		g.groupOrder = append(g.groupOrder, name)
		return nil
	})
}

// AddDependencyCallback registers fn to declare ordering between IDs and
// groups. Callbacks run during Build.
func (g *Generator) AddDependencyCallback(fn func(d *Dependencies) error) error {
	return g.mutate("add dependency callback", func() error {
		if fn == nil {
			return builderr.Configf(g.name, "nil dependency callback")
		}

		g.callbacks = append(g.callbacks, fn)
		return nil
	})
}

// DependsOn orders the generator after u in the task graph
func (g *Generator) DependsOn(u taskgraph.Unit) error {
	return g.mutate("add dependency", func() error {
		if u == nil {
			return builderr.Configf(g.name, "nil dependency")
		}

		if u.Name() == g.name {
			return builderr.Configf(g.name, "generator cannot depend on itself")
		}

		g.deps = append(g.deps, u)
		return nil
	})
}

// Dependencies returns the units this generator must follow
func (g *Generator) Dependencies() []taskgraph.Unit {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]taskgraph.Unit(nil), g.deps...)
}

// IDs returns the declared IDs in declaration order
func (g *Generator) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.order...)
}

// Outputs returns the outputs of an ID
func (g *Generator) Outputs(name string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.ids[name]
	if !ok {
		return nil, false
	}

	return append([]string(nil), entry.outputs...), true
}

// Commands returns the expanded commands of an ID
func (g *Generator) Commands(name string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.ids[name]
	if !ok {
		return nil, false
	}

	return append([]string(nil), entry.commands...), true
}

// Build locks the generator, serializes blobs and loads the previous
// record
func (g *Generator) Build() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked {
		return builderr.Config(g.name, "build", builderr.ErrLocked)
	}

	g.locked = true
	g.setState(Locked)

	if err := g.prepare(); err != nil {
		g.setState(Failed)
		return err
	}

	return nil
}

func (g *Generator) prepare() error {
	if len(g.order) == 0 {
		return builderr.Configf(g.name, "no ids declared")
	}

	for _, name := range g.order {
		entry := g.ids[name]
		if entry.blob == nil {
			continue
		}

		data, err := entry.blob.Serialize()
		if err != nil {
			return builderr.Serializationf(g.name, err, "serialize blob of id %q", name)
		}

		if !entry.blob.Verify(data) {
			return builderr.Serializationf(g.name, errors.New("verification failed"), "serialize blob of id %q", name)
		}

		entry.blobData = data
	}

	if err := g.plan(); err != nil {
		return err
	}

	g.loadRecord()
	return nil
}

func (g *Generator) loadRecord() {
	prev, err := g.store.LoadGenerator(g.env.Fingerprinter().Mode())
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			g.logger.Warn("ignoring unreadable record", "path", g.store.Path(), "error", err)
		} else {
			g.logger.Debug("no record", "path", g.store.Path(), "reason", err)
		}

		return
	}

	if prev.Name != g.name {
		g.logger.Warn("ignoring record of another generator", "path", g.store.Path(), "name", prev.Name)
		return
	}

	g.prev = prev
}
