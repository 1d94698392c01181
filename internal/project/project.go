// Package project turns a ccbuild.toml manifest into targets and generators
// and runs them as one task graph.
package project

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"github.com/Norgate-AV/ccbuild/internal/buildenv"
	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/generator"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/target"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
	"github.com/Norgate-AV/ccbuild/internal/toolchain"
)

// unit is what the project needs from targets and generators
type unit interface {
	taskgraph.Unit
	Build() error
	Dependencies() []taskgraph.Unit
}

// Project is the set of units declared by a manifest
type Project struct {
	env    *buildenv.Context
	logger *slog.Logger
	tc     *toolchain.Toolchain
	paths  *command.Builder

	units      []unit
	byName     map[string]unit
	targets    []*target.Target
	generators []*generator.Generator

	planned bool
}

// Load constructs the toolchain, targets and generators of m. Paths in
// target declarations may use {project_root_dir} and {project_build_dir}.
func Load(env *buildenv.Context, m *Manifest) (*Project, error) {
	if env == nil {
		return nil, builderr.Configf("", "project requires a build context")
	}

	if m == nil {
		return nil, builderr.Configf("", "project requires a manifest")
	}

	tc, err := newToolchain(m.Toolchain)
	if err != nil {
		return nil, err
	}

	p := &Project{
		env:    env,
		logger: env.Logger(),
		tc:     tc,
		paths:  command.NewBuilder(),
		byName: make(map[string]unit),
	}

	for key, value := range map[string]string{
		generator.ProjectRootDir:  env.RootDir(),
		generator.ProjectBuildDir: env.BuildDir(),
	} {
		if err := p.paths.AddDefault(key, value); err != nil {
			return nil, builderr.Config("", "add path pattern", err)
		}
	}

	for _, spec := range m.Generators {
		g, err := p.newGenerator(spec)
		if err != nil {
			return nil, err
		}

		p.generators = append(p.generators, g)
		p.add(g)
	}

	for _, spec := range m.Targets {
		t, err := p.newTarget(spec)
		if err != nil {
			return nil, err
		}

		p.targets = append(p.targets, t)
		p.add(t)
	}

	// References may point at units declared later
	for i, spec := range m.Generators {
		if err := p.wireDeps(spec.Name, spec.Deps, p.generators[i].DependsOn); err != nil {
			return nil, err
		}
	}

	for i, spec := range m.Targets {
		t := p.targets[i]

		if err := p.wireLibDeps(t, spec.LibDeps); err != nil {
			return nil, err
		}

		if err := p.wireDeps(spec.Name, spec.Deps, t.DependsOn); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("loaded project",
		"toolchain", tc.Name(),
		"targets", len(p.targets),
		"generators", len(p.generators))

	return p, nil
}

func newToolchain(spec ToolchainSpec) (*toolchain.Toolchain, error) {
	id := toolchain.Gcc
	if spec.ID != "" {
		parsed, err := toolchain.ParseID(spec.ID)
		if err != nil {
			return nil, builderr.Config("", "select toolchain", err)
		}

		id = parsed
	}

	name := spec.Name
	if name == "" {
		name = id.String()
	}

	switch id {
	case toolchain.Gcc:
		return toolchain.NewGcc(name, spec.Executables)
	case toolchain.Clang:
		return toolchain.NewClang(name, spec.Executables)
	case toolchain.MinGW:
		return toolchain.NewMinGW(name, spec.Executables)
	case toolchain.Msvc:
		return toolchain.NewMsvc(name, spec.Executables)
	default:
		return nil, builderr.Configf(name, "a %s toolchain cannot be declared in a manifest", id)
	}
}

func (p *Project) add(u unit) {
	p.units = append(p.units, u)
	p.byName[u.Name()] = u
}

func (p *Project) expand(owner string, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		s, err := p.paths.Construct(path, nil)
		if err != nil {
			return nil, builderr.Config(owner, "expand "+path, err)
		}

		out = append(out, s)
	}

	return out, nil
}

func (p *Project) newTarget(spec TargetSpec) (*target.Target, error) {
	typ, err := record.ParseTargetType(spec.Type)
	if err != nil {
		return nil, builderr.Config(spec.Name, "parse target type", err)
	}

	root := spec.Root
	if root == "" {
		root = "."
	}

	t, err := target.New(spec.Name, typ, p.tc, p.env, root)
	if err != nil {
		return nil, err
	}

	pathLists := []struct {
		paths []string
		add   func(string) error
	}{
		{spec.Sources, t.AddSource},
		{spec.Headers, t.AddHeader},
		{spec.Pchs, t.AddPch},
		{spec.IncludeDirs, t.AddIncludeDir},
		{spec.LibDirs, t.AddLibDir},
		{spec.CompileDependencies, t.AddCompileDependency},
		{spec.LinkDependencies, t.AddLinkDependency},
	}

	for _, list := range pathLists {
		paths, err := p.expand(spec.Name, list.paths)
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			if err := list.add(path); err != nil {
				return nil, err
			}
		}
	}

	for _, g := range spec.Globs {
		dir, err := p.paths.Construct(g.Dir, nil)
		if err != nil {
			return nil, builderr.Config(spec.Name, "expand "+g.Dir, err)
		}

		n, err := t.GlobSources(dir, g.Pattern)
		if err != nil {
			return nil, err
		}

		if n == 0 {
			p.logger.Warn("glob matched no sources", "target", spec.Name, "dir", g.Dir, "pattern", g.Pattern)
		}
	}

	for _, lib := range spec.ExternalLibs {
		if err := t.AddExternalLibDep(lib); err != nil {
			return nil, err
		}
	}

	flags := []struct {
		kind  target.FlagKind
		flags []string
	}{
		{target.PreprocessorFlag, spec.Flags.Preprocessor},
		{target.CommonCompileFlag, spec.Flags.Common},
		{target.PchCompileFlag, spec.Flags.Pch},
		{target.PchObjectFlag, spec.Flags.PchObject},
		{target.AsmCompileFlag, spec.Flags.Asm},
		{target.CCompileFlag, spec.Flags.C},
		{target.CppCompileFlag, spec.Flags.Cpp},
		{target.LinkFlag, spec.Flags.Link},
	}

	for _, f := range flags {
		for _, flag := range f.flags {
			if err := t.AddFlag(f.kind, flag); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

func (p *Project) newGenerator(spec GeneratorSpec) (*generator.Generator, error) {
	root := spec.Root
	if root == "" {
		root = "."
	}

	g, err := generator.New(spec.Name, p.env, root)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(spec.Patterns))
	for k := range spec.Patterns {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	for _, k := range keys {
		if err := g.AddPattern(k, spec.Patterns[k]); err != nil {
			return nil, err
		}
	}

	for _, id := range spec.IDs {
		idSpec := generator.IDSpec{
			Inputs:   id.Inputs,
			Outputs:  id.Outputs,
			Commands: id.Commands,
			Parallel: id.Parallel,
		}

		if len(id.Blob) > 0 {
			idSpec.Blob = generator.NewJSONBlob(id.Blob)
		}

		if err := g.AddID(id.Name, idSpec); err != nil {
			return nil, err
		}
	}

	for _, group := range spec.Groups {
		if err := g.AddGroup(group.Name, group.IDs...); err != nil {
			return nil, err
		}
	}

	if len(spec.Order) > 0 {
		order := slices.Clone(spec.Order)
		err := g.AddDependencyCallback(func(d *generator.Dependencies) error {
			for _, o := range order {
				if err := d.Add(o.From, o.To); err != nil {
					return err
				}
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (p *Project) wireDeps(owner string, deps []string, dependsOn func(taskgraph.Unit) error) error {
	for _, name := range deps {
		u, ok := p.byName[name]
		if !ok {
			return builderr.Configf(owner, "unknown dependency %q", name)
		}

		if err := dependsOn(u); err != nil {
			return err
		}
	}

	return nil
}

func (p *Project) wireLibDeps(t *target.Target, libs []string) error {
	for _, lib := range libs {
		if u, ok := p.byName[lib]; ok {
			dep, ok := u.(*target.Target)
			if !ok {
				return builderr.Configf(t.Name(), "lib dependency %q is not a target", lib)
			}

			if err := t.AddLibDepTarget(dep); err != nil {
				return err
			}

			continue
		}

		paths, err := p.expand(t.Name(), []string{lib})
		if err != nil {
			return err
		}

		if err := t.AddLibDep(paths[0]); err != nil {
			return err
		}
	}

	return nil
}

// Targets returns the targets in declaration order
func (p *Project) Targets() []*target.Target {
	return slices.Clone(p.targets)
}

// Generators returns the generators in declaration order
func (p *Project) Generators() []*generator.Generator {
	return slices.Clone(p.generators)
}

// Toolchain returns the toolchain every target is built with
func (p *Project) Toolchain() *toolchain.Toolchain {
	return p.tc
}

// Plan locks every unit and constructs its commands. It runs once; later
// calls return nil.
func (p *Project) Plan() error {
	if p.planned {
		return nil
	}

	for _, u := range p.units {
		if err := u.Build(); err != nil {
			return err
		}
	}

	p.planned = true
	return nil
}

// Graph composes the planned units into a task graph
func (p *Project) Graph() (*taskgraph.Graph, error) {
	if err := p.Plan(); err != nil {
		return nil, err
	}

	g := taskgraph.New()
	for _, u := range p.units {
		if err := g.Add(u); err != nil {
			return nil, err
		}
	}

	for _, u := range p.units {
		for _, dep := range u.Dependencies() {
			if err := g.Depend(u, dep); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// Build plans the project and runs its graph on jobs workers
func (p *Project) Build(ctx context.Context, jobs int) (*taskgraph.Result, error) {
	g, err := p.Graph()
	if err != nil {
		return nil, err
	}

	exec := &taskgraph.Executor{Jobs: jobs, Logger: p.logger}
	return exec.Run(ctx, g)
}

// CompileCommands plans the project and returns the compile commands of
// every target, in target declaration order
func (p *Project) CompileCommands() ([]target.CompileCommand, error) {
	if err := p.Plan(); err != nil {
		return nil, err
	}

	var out []target.CompileCommand
	for _, t := range p.targets {
		out = append(out, t.CompileCommands()...)
	}

	return out, nil
}
