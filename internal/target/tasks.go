package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/staleness"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
	"github.com/Norgate-AV/ccbuild/internal/utils"
)

var _ taskgraph.Unit = (*Target)(nil)

// Tasks contributes the pch, compile and link tasks of a built target
func (t *Target) Tasks(g *taskgraph.Graph) (entry, exit *taskgraph.Task, err error) {
	if !t.IsLocked() || t.objects == nil {
		return nil, nil, builderr.Configf(t.name, "target must be built before it is added to a task graph")
	}

	t.resetRun()

	compile := g.Emplace(t.name+":compile", t.compileTask)
	link := g.Emplace(t.name+":link", t.linkTask)
	compile.Precede(link)

	if t.pch == nil {
		return compile, link, nil
	}

	pch := g.Emplace(t.name+":pch", t.pchTask)
	pch.Precede(compile)

	return pch, link, nil
}

func (t *Target) resetRun() {
	t.run.mu.Lock()
	defer t.run.mu.Unlock()

	t.run.cur = t.baseRecord()
	t.run.dirty = false
	t.run.objects = fingerprint.Set{}
	t.run.compileFailed = false
	t.run.pending.Store(0)
	t.run.report = Report{Events: make(map[Event]int)}
}

// baseRecord returns the declaration fields that need no fingerprinting
func (t *Target) baseRecord() record.Target {
	t.mu.Lock()
	defer t.mu.Unlock()

	return record.Target{
		Name:               t.name,
		Type:               t.typ,
		Toolchain:          t.tc.Identity(),
		Sources:            fingerprint.Set{},
		Headers:            fingerprint.Set{},
		Pchs:               fingerprint.Set{},
		LibDeps:            fingerprint.Set{},
		ExternalLibDeps:    clone(t.externalLibDeps),
		IncludeDirs:        sorted(t.includeDirs),
		LibDirs:            sorted(t.libDirs),
		PreprocessorFlags:  sorted(t.flags[PreprocessorFlag]),
		CommonCompileFlags: sorted(t.flags[CommonCompileFlag]),
		PchCompileFlags:    sorted(t.flags[PchCompileFlag]),
		PchObjectFlags:     sorted(t.flags[PchObjectFlag]),
		AsmCompileFlags:    sorted(t.flags[AsmCompileFlag]),
		CCompileFlags:      sorted(t.flags[CCompileFlag]),
		CppCompileFlags:    sorted(t.flags[CppCompileFlag]),
		LinkFlags:          sorted(t.flags[LinkFlag]),

		CompileDependencies: fingerprint.Set{},
		LinkDependencies:    fingerprint.Set{},
	}
}

func (t *Target) pchTask(ctx context.Context, _ *taskgraph.Subflow) error {
	t.setState(PchPending)

	fp := t.env.Fingerprinter()
	cur := &t.run.cur

	headers, err := t.headers.Convert(fp)
	if err != nil {
		return t.inputError("headers", err)
	}

	pchs, err := t.pchs.Convert(fp)
	if err != nil {
		return t.inputError("pch headers", err)
	}

	cur.Headers = headers
	cur.Pchs = pchs

	prev := t.prev
	dirty := prev == nil
	if dirty {
		t.run.event(NoRecord)
	} else {
		dirty = t.compileFlagsChanged() ||
			t.checkStrings(FlagChanged, "pch compile flags", prev.PchCompileFlags, cur.PchCompileFlags) ||
			t.checkPaths(PathChanged, "pch headers", prev.Pchs, cur.Pchs) ||
			!prev.PchCompiled
	}

	if !dirty {
		cur.PchCompiled = true
		t.logger.Debug("pch is up to date")
		return nil
	}

	if err := t.writePchSources(); err != nil {
		t.setState(Failed)
		return err
	}

	t.logger.Info("compiling pch", "header", t.pch.header)

	if err := t.execute(ctx, "compile pch", t.pch.command); err != nil {
		t.setState(Failed)
		return err
	}

	t.run.mu.Lock()
	cur.PchCompiled = true
	t.run.dirty = true
	t.run.report.PchCompiled = true
	t.run.mu.Unlock()

	return nil
}

// writePchSources writes the aggregated pch header and its companion
// source. Unchanged content is not rewritten.
func (t *Target) writePchSources() error {
	var header strings.Builder
	header.WriteString("#ifndef CCBUILD_PCH_H_\n#define CCBUILD_PCH_H_\n\n")

	for _, h := range t.pchs.User() {
		fmt.Fprintf(&header, "#include %q\n", filepath.ToSlash(h))
	}

	header.WriteString("\n#endif\n")

	if err := writeIfChanged(t.pch.header, header.String()); err != nil {
		return builderr.Serializationf(t.name, err, "write pch header %s", t.pch.header)
	}

	source := fmt.Sprintf("#include %q\n", filepath.ToSlash(t.pch.header))
	if err := writeIfChanged(t.pch.source, source); err != nil {
		return builderr.Serializationf(t.name, err, "write pch source %s", t.pch.source)
	}

	return nil
}

func (t *Target) compileTask(ctx context.Context, sf *taskgraph.Subflow) error {
	t.setState(CompilePending)

	fp := t.env.Fingerprinter()
	cur := &t.run.cur

	sources, err := t.sources.Convert(fp)
	if err != nil {
		return t.inputError("sources", err)
	}

	if t.pch == nil {
		headers, err := t.headers.Convert(fp)
		if err != nil {
			return t.inputError("headers", err)
		}

		cur.Headers = headers
	}

	compileDeps, err := t.compileDeps.Convert(fp)
	if err != nil {
		return t.inputError("compile dependencies", err)
	}

	cur.Sources = sources
	cur.CompileDependencies = compileDeps

	prev := t.prev
	valid := fingerprint.Set{}

	var scheduled []string

	if t.run.dirty || t.compileWideChanged() {
		t.run.dirty = true
		scheduled = t.sourceOrder
	} else {
		for _, name := range prev.Sources.Names() {
			if !sources.Contains(name) {
				t.note(SourceRemoved, "sources", func() string {
					return staleness.ExplainPaths("sources", prev.Sources, sources)
				})
				t.run.dirty = true
				break
			}
		}

		mode := fp.Mode()
		for _, name := range t.sourceOrder {
			sig := sources[name]
			prevSig, ok := prev.Sources[name]

			switch {
			case !ok:
				t.note(SourceAdded, name, nil)
				scheduled = append(scheduled, name)
			case staleness.Newer(prevSig, sig, mode):
				t.note(SourceUpdated, name, nil)
				scheduled = append(scheduled, name)
			default:
				valid[name] = sig
			}
		}

		if len(scheduled) > 0 {
			t.run.dirty = true
		}
	}

	t.run.objects = valid

	if len(scheduled) == 0 {
		t.logger.Debug("objects are up to date")
		return nil
	}

	t.logger.Info("compiling", "sources", len(scheduled), "total", len(t.sourceOrder))
	t.run.pending.Store(int64(len(scheduled)))

	for _, name := range scheduled {
		obj := t.objects[name]
		sig := sources[name]

		sf.Emplace(t.name+":"+utils.ObjectRelPath(t.env.RootDir(), name), func(ctx context.Context, _ *taskgraph.Subflow) error {
			return t.compileObject(ctx, obj, sig)
		})
	}

	return nil
}

// compileWideChanged checks every input shared by all objects
func (t *Target) compileWideChanged() bool {
	prev := t.prev
	if prev == nil {
		t.run.event(NoRecord)
		return true
	}

	cur := &t.run.cur

	return t.compileFlagsChanged() ||
		t.checkStrings(FlagChanged, "pch object flags", prev.PchObjectFlags, cur.PchObjectFlags) ||
		t.checkStrings(FlagChanged, "asm compile flags", prev.AsmCompileFlags, cur.AsmCompileFlags) ||
		t.checkPaths(PathChanged, "pch headers", prev.Pchs, cur.Pchs) ||
		t.checkPaths(PathChanged, "compile dependencies", prev.CompileDependencies, cur.CompileDependencies)
}

// compileFlagsChanged checks the inputs shared by the pch and every object
func (t *Target) compileFlagsChanged() bool {
	prev, cur := t.prev, &t.run.cur

	if prev.Toolchain != cur.Toolchain {
		t.note(ToolchainChanged, "toolchain", func() string {
			return staleness.Explain("toolchain", identityLines(prev.Toolchain), identityLines(cur.Toolchain))
		})
		return true
	}

	return t.checkStrings(FlagChanged, "preprocessor flags", prev.PreprocessorFlags, cur.PreprocessorFlags) ||
		t.checkStrings(FlagChanged, "common compile flags", prev.CommonCompileFlags, cur.CommonCompileFlags) ||
		t.checkStrings(FlagChanged, "c compile flags", prev.CCompileFlags, cur.CCompileFlags) ||
		t.checkStrings(FlagChanged, "cpp compile flags", prev.CppCompileFlags, cur.CppCompileFlags) ||
		t.checkStrings(DirChanged, "include dirs", prev.IncludeDirs, cur.IncludeDirs) ||
		t.checkPaths(PathChanged, "headers", prev.Headers, cur.Headers)
}

func (t *Target) compileObject(ctx context.Context, obj *object, sig uint64) error {
	var err error
	if mkErr := os.MkdirAll(filepath.Dir(obj.output), 0o755); mkErr != nil {
		err = builderr.Exec(t.name, "create object directory", "", nil, mkErr)
	} else {
		err = t.execute(ctx, "compile "+obj.source, obj.command)
	}

	t.run.mu.Lock()
	if err == nil {
		t.run.objects[obj.source] = sig
		t.run.report.Compiled = append(t.run.report.Compiled, obj.source)
	} else {
		t.run.compileFailed = true
	}
	t.run.mu.Unlock()

	// The last child to finish records the objects that did compile
	if t.run.pending.Add(-1) == 0 {
		t.run.mu.Lock()
		failed := t.run.compileFailed
		objects := t.run.objects.Clone()
		t.run.mu.Unlock()

		if failed {
			if perr := t.persist(objects, false); perr != nil {
				t.setState(Failed)
				return perr
			}
		}
	}

	if err != nil {
		t.setState(Failed)
		return err
	}

	return nil
}

func (t *Target) linkTask(ctx context.Context, _ *taskgraph.Subflow) error {
	t.setState(LinkPending)

	fp := t.env.Fingerprinter()
	cur := &t.run.cur

	libDeps, err := t.libDeps.Convert(fp)
	if err != nil {
		return t.inputError("lib deps", err)
	}

	linkDeps, err := t.linkDeps.Convert(fp)
	if err != nil {
		return t.inputError("link dependencies", err)
	}

	cur.LibDeps = libDeps
	cur.LinkDependencies = linkDeps

	prev := t.prev
	dirty := t.run.dirty || prev == nil ||
		t.checkStrings(FlagChanged, "link flags", prev.LinkFlags, cur.LinkFlags) ||
		t.checkStrings(DirChanged, "lib dirs", prev.LibDirs, cur.LibDirs) ||
		t.checkOrdered(LinkChanged, "external lib deps", prev.ExternalLibDeps, cur.ExternalLibDeps) ||
		t.checkPaths(LinkChanged, "link dependencies", prev.LinkDependencies, cur.LinkDependencies) ||
		t.checkPaths(LinkChanged, "lib deps", prev.LibDeps, cur.LibDeps) ||
		t.notLinked()

	if !dirty {
		t.logger.Debug("target is up to date", "output", t.output)
		t.setState(Built)
		return nil
	}

	t.run.mu.Lock()
	objects := t.run.objects.Clone()
	t.run.mu.Unlock()

	if err := os.MkdirAll(t.buildDir, 0o755); err != nil {
		t.setState(Failed)
		return builderr.Serializationf(t.name, err, "create %s", t.buildDir)
	}

	t.logger.Info("linking", "output", t.output)

	if err := t.execute(ctx, "link", t.linkCommand); err != nil {
		t.setState(Failed)

		if perr := t.persist(objects, false); perr != nil {
			return perr
		}

		return err
	}

	t.run.mu.Lock()
	t.run.report.Linked = true
	t.run.mu.Unlock()

	if err := t.persist(objects, true); err != nil {
		t.setState(Failed)
		return err
	}

	t.setState(Built)
	return nil
}

func (t *Target) notLinked() bool {
	if t.prev.TargetLinked {
		return false
	}

	t.note(LinkChanged, "target linked", nil)
	return true
}

// execute runs cmd and turns a failure into an execution error
func (t *Target) execute(ctx context.Context, op, cmd string) error {
	t.logger.Debug("running command", "op", op, "command", cmd)

	res, err := t.env.Executor().Execute(ctx, cmd, t.env.RootDir())
	if err != nil {
		return builderr.Exec(t.name, op, cmd, nil, err)
	}

	if !res.Success {
		return builderr.Exec(t.name, op, cmd, res.Stderr, fmt.Errorf("exit status %d", res.ExitCode))
	}

	return nil
}

// persist stores the current record with sources as the compiled objects
func (t *Target) persist(sources fingerprint.Set, linked bool) error {
	t.run.mu.Lock()
	rec := t.run.cur
	t.run.mu.Unlock()

	rec.Sources = sources
	rec.TargetLinked = linked

	if err := t.store.StoreTarget(t.env.Fingerprinter().Mode(), &rec); err != nil {
		return builderr.Serializationf(t.name, err, "store build record %s", t.store.Path())
	}

	t.logger.Debug("stored build record",
		"path", t.store.Path(),
		"sources", len(sources),
		"linked", linked)

	return nil
}

func (t *Target) inputError(what string, err error) error {
	t.setState(Failed)
	return builderr.Config(t.name, "fingerprint "+what, err)
}

func writeIfChanged(path, content string) error {
	if data, err := os.ReadFile(path); err == nil && string(data) == content {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(content), 0o644)
}
