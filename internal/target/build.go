package target

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/toolchain"
	"github.com/Norgate-AV/ccbuild/internal/utils"
)

// pchBaseName is the file name of the aggregated pch header and source
const pchBaseName = "ccbuild_pch"

// object is the compile data of one source
type object struct {
	source   string
	output   string
	fileType toolchain.FileType
	command  string
}

// pchData is the compile data of the precompiled header
type pchData struct {
	header   string
	compiled string
	source   string
	object   string
	command  string
}

// Placeholders naming toolchain executables. A template that references one
// needs a non-empty executable.
var toolKeys = []string{"compiler", "assembler", "c_compiler", "cpp_compiler", "archiver", "linker"}

// Build locks the target and prepares every command. After Build the
// declaration cannot change and the target can be added to a task graph.
func (t *Target) Build() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.locked {
		return builderr.Config(t.name, "build", builderr.ErrLocked)
	}

	t.locked = true
	t.setState(Locked)

	if err := t.prepare(); err != nil {
		t.setState(Failed)
		return err
	}

	if t.pch == nil {
		t.setState(NoPch)
	}

	return nil
}

func (t *Target) prepare() error {
	if t.sources.Len() == 0 {
		return builderr.Configf(t.name, "no sources declared")
	}

	t.objects = make(map[string]*object, t.sources.Len())
	t.sourceOrder = t.sources.User()
	sort.Strings(t.sourceOrder)

	for _, src := range t.sourceOrder {
		ft := t.config.FileType(src)

		switch ft {
		case toolchain.Asm, toolchain.C, toolchain.Cpp:
		default:
			return builderr.Config(t.name, "classify sources", fmt.Errorf("%w: %s", builderr.ErrBadExtension, src))
		}

		t.objects[src] = &object{
			source:   src,
			output:   utils.ObjectPath(t.buildDir, t.env.RootDir(), src, t.config.ObjExt),
			fileType: ft,
		}
	}

	if t.pchs.Len() > 0 {
		if err := t.preparePch(); err != nil {
			return err
		}
	}

	for _, src := range t.sourceOrder {
		obj := t.objects[src]

		cmd, err := t.compileCommand(obj)
		if err != nil {
			return err
		}

		obj.command = cmd
	}

	link, err := t.prepareLink()
	if err != nil {
		return err
	}

	t.linkCommand = link
	t.loadRecord()

	t.logger.Debug("target prepared",
		"sources", len(t.sourceOrder),
		"pch", t.pch != nil,
		"record", t.prev != nil,
		"output", t.output)

	return nil
}

// hasCpp reports whether any source is C++
func (t *Target) hasCpp() bool {
	for _, obj := range t.objects {
		if obj.fileType == toolchain.Cpp {
			return true
		}
	}

	return false
}

func (t *Target) languageFlags(ft toolchain.FileType) (string, []string) {
	exes := t.tc.Executables()

	switch ft {
	case toolchain.Asm:
		return exes.Assembler, t.flags[AsmCompileFlag]
	case toolchain.C:
		return exes.CCompiler, t.flags[CCompileFlag]
	default:
		return exes.CppCompiler, t.flags[CppCompileFlag]
	}
}

func (t *Target) compileCommand(obj *object) (string, error) {
	compiler, flags := t.languageFlags(obj.fileType)

	var pchFlags []string
	if t.pch != nil && obj.fileType != toolchain.Asm {
		pchFlags = slices.Clone(t.flags[PchObjectFlag])
		pchFlags = append(pchFlags, t.tc.PchObjectFlags(t.pch.header, t.pch.compiled)...)
	}

	bindings := map[string]string{
		"compiler":             compiler,
		"preprocessor_flags":   command.Aggregate(t.flags[PreprocessorFlag]),
		"include_dirs":         command.AggregateWithPrefix(t.config.PrefixIncludeDir, t.includeDirs),
		"common_compile_flags": command.Aggregate(t.flags[CommonCompileFlag]),
		"pch_object_flags":     command.Aggregate(pchFlags),
		"compile_flags":        command.Aggregate(flags),
		"output":               command.Quote(obj.output),
		"input":                command.Quote(obj.source),
	}

	return t.construct("construct compile command for "+obj.source, t.templates.Compile, bindings)
}

func (t *Target) preparePch() error {
	if t.templates.Pch == "" {
		return builderr.Configf(t.name, "toolchain %s has no pch template", t.tc.Name())
	}

	headerExt := t.config.PchHeaderExt
	if headerExt == "" {
		headerExt = ".h"
	}

	ft, sourceExt := toolchain.C, ".c"
	if t.hasCpp() {
		ft, sourceExt = toolchain.Cpp, ".cpp"
	}

	dir := filepath.Join(t.buildDir, "pch")
	p := &pchData{
		header: filepath.Join(dir, pchBaseName+headerExt),
		source: filepath.Join(dir, pchBaseName+sourceExt),
	}
	p.compiled = p.header + t.config.PchCompileExt
	p.object = p.source + t.config.ObjExt

	compiler, flags := t.languageFlags(ft)

	bindings := map[string]string{
		"compiler":             compiler,
		"preprocessor_flags":   command.Aggregate(t.flags[PreprocessorFlag]),
		"include_dirs":         command.AggregateWithPrefix(t.config.PrefixIncludeDir, t.includeDirs),
		"common_compile_flags": command.Aggregate(t.flags[CommonCompileFlag]),
		"pch_compile_flags":    command.Aggregate(t.flags[PchCompileFlag]),
		"compile_flags":        command.Aggregate(flags),
		"output":               command.Quote(p.compiled),
		"input":                command.Quote(p.header),
		"input_source":         command.Quote(p.source),
		"pch_object_output":    command.Quote(p.object),
	}

	cmd, err := t.construct("construct pch command", t.templates.Pch, bindings)
	if err != nil {
		return err
	}

	p.command = cmd
	t.pch = p
	return nil
}

// compiledSources returns the object files passed to the linker
func (t *Target) compiledSources() []string {
	out := make([]string, 0, len(t.sourceOrder)+1)
	for _, src := range t.sourceOrder {
		out = append(out, t.objects[src].output)
	}

	if t.pch != nil && t.config.LinkPchObject {
		out = append(out, t.pch.object)
	}

	return out
}

func (t *Target) prepareLink() (string, error) {
	exes := t.tc.Executables()

	libDeps := command.AggregatePaths(t.libDeps.User())
	if len(t.externalLibDeps) > 0 {
		libDeps = strings.TrimSpace(libDeps + " " + strings.Join(t.externalLibDeps, " "))
	}

	bindings := map[string]string{
		"assembler":        exes.Assembler,
		"c_compiler":       exes.CCompiler,
		"cpp_compiler":     exes.CppCompiler,
		"archiver":         exes.Archiver,
		"linker":           exes.Linker,
		"link_flags":       command.Aggregate(t.flags[LinkFlag]),
		"compiled_sources": command.AggregateSortedPaths(t.compiledSources()),
		"lib_dirs":         command.AggregateWithPrefix(t.config.PrefixLibDir, t.libDirs),
		"lib_deps":         libDeps,
		"output":           command.Quote(t.output),
	}

	return t.construct("construct link command", t.templates.Link, bindings)
}

func (t *Target) construct(op, template string, bindings map[string]string) (string, error) {
	for _, key := range toolKeys {
		if strings.Contains(template, "{"+key+"}") && bindings[key] == "" {
			return "", builderr.Configf(t.name, "%s: toolchain %s has no executable for {%s}", op, t.tc.Name(), key)
		}
	}

	cmd, err := command.Construct(template, bindings)
	if err != nil {
		return "", builderr.Config(t.name, op, err)
	}

	return command.Tidy(cmd), nil
}

// loadRecord reads the previous build record. Any problem with it means the
// target builds from scratch.
func (t *Target) loadRecord() {
	prev, err := t.store.LoadTarget(t.env.Fingerprinter().Mode())
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			t.logger.Warn("ignoring unreadable build record", "path", t.store.Path(), "error", err)
		} else {
			t.logger.Debug("no build record", "path", t.store.Path(), "reason", err)
		}

		return
	}

	if prev.Name != t.name || prev.Type != t.typ {
		t.logger.Warn("ignoring build record of another target",
			"path", t.store.Path(),
			"name", prev.Name,
			"type", prev.Type)
		return
	}

	t.prev = prev
}
