// Package toolchain describes compiler families as data.
//
// A Toolchain carries its executables, file extension conventions and one
// set of command templates per target kind. Families differ only in that
// data; the command package renders every family the same way. Toolchains
// are immutable after construction and may be shared by many targets.
package toolchain

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/record"
)

// ID identifies a toolchain family
type ID int

const (
	Undefined ID = iota
	Gcc
	Msvc
	Clang
	MinGW
	Custom
)

func (id ID) String() string {
	switch id {
	case Gcc:
		return "gcc"
	case Msvc:
		return "msvc"
	case Clang:
		return "clang"
	case MinGW:
		return "mingw"
	case Custom:
		return "custom"
	default:
		return "undefined"
	}
}

// ParseID parses a family name
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gcc":
		return Gcc, nil
	case "msvc":
		return Msvc, nil
	case "clang":
		return Clang, nil
	case "mingw":
		return MinGW, nil
	case "custom":
		return Custom, nil
	default:
		return Undefined, fmt.Errorf("unknown toolchain: %q", s)
	}
}

// Executables names the programs a toolchain runs
type Executables struct {
	Assembler   string `toml:"assembler"`
	CCompiler   string `toml:"c_compiler"`
	CppCompiler string `toml:"cpp_compiler"`
	Archiver    string `toml:"archiver"`
	Linker      string `toml:"linker"`
}

// merge fills blank fields of e from defaults
func (e Executables) merge(defaults Executables) Executables {
	if e.Assembler == "" {
		e.Assembler = defaults.Assembler
	}

	if e.CCompiler == "" {
		e.CCompiler = defaults.CCompiler
	}

	if e.CppCompiler == "" {
		e.CppCompiler = defaults.CppCompiler
	}

	if e.Archiver == "" {
		e.Archiver = defaults.Archiver
	}

	if e.Linker == "" {
		e.Linker = defaults.Linker
	}

	return e
}

// FileType classifies a file by extension
type FileType int

const (
	Invalid FileType = iota
	Asm
	C
	Cpp
	Header
)

func (f FileType) String() string {
	switch f {
	case Asm:
		return "asm"
	case C:
		return "c"
	case Cpp:
		return "cpp"
	case Header:
		return "header"
	default:
		return "invalid"
	}
}

// Config holds the file conventions of a toolchain
type Config struct {
	ObjExt        string
	PchHeaderExt  string
	PchCompileExt string

	PrefixIncludeDir string
	PrefixLibDir     string

	ValidAsmExt    []string
	ValidCExt      []string
	ValidCppExt    []string
	ValidHeaderExt []string

	// LinkPchObject links the object produced alongside the pch
	LinkPchObject bool
}

// FileType classifies path by its extension
func (c Config) FileType(path string) FileType {
	ext := filepath.Ext(path)

	switch {
	case ext == "":
		return Invalid
	case slices.Contains(c.ValidAsmExt, ext):
		return Asm
	case slices.Contains(c.ValidCExt, ext):
		return C
	case slices.Contains(c.ValidCppExt, ext):
		return Cpp
	case slices.Contains(c.ValidHeaderExt, ext):
		return Header
	default:
		return Invalid
	}
}

func (c Config) clone() Config {
	c.ValidAsmExt = slices.Clone(c.ValidAsmExt)
	c.ValidCExt = slices.Clone(c.ValidCExt)
	c.ValidCppExt = slices.Clone(c.ValidCppExt)
	c.ValidHeaderExt = slices.Clone(c.ValidHeaderExt)
	return c
}

// Templates are the commands and defaults used for one target kind
type Templates struct {
	Compile string
	Pch     string
	Link    string

	// OutputExt is appended to the target name
	OutputExt string

	CommonCompileFlags []string
	CCompileFlags      []string
	CppCompileFlags    []string
	LinkFlags          []string
}

func (t Templates) clone() Templates {
	t.CommonCompileFlags = slices.Clone(t.CommonCompileFlags)
	t.CCompileFlags = slices.Clone(t.CCompileFlags)
	t.CppCompileFlags = slices.Clone(t.CppCompileFlags)
	t.LinkFlags = slices.Clone(t.LinkFlags)
	return t
}

// PchObjectFunc returns the flags that make an object use a compiled pch
type PchObjectFunc func(header, compiled string) []string

// Toolchain is an immutable toolchain description
type Toolchain struct {
	id        ID
	name      string
	exes      Executables
	config    Config
	templates map[record.TargetType]Templates
	pchObject PchObjectFunc
}

// ID returns the family
func (tc *Toolchain) ID() ID {
	return tc.id
}

// Name returns the instance name, used to separate build directories
func (tc *Toolchain) Name() string {
	return tc.name
}

// Executables returns the executables
func (tc *Toolchain) Executables() Executables {
	return tc.exes
}

// Config returns the file conventions
func (tc *Toolchain) Config() Config {
	return tc.config.clone()
}

// Templates returns the templates for a target kind
func (tc *Toolchain) Templates(t record.TargetType) (Templates, bool) {
	tmpl, ok := tc.templates[t]
	if !ok {
		return Templates{}, false
	}

	return tmpl.clone(), true
}

// PchObjectFlags returns the flags objects need to use the pch
func (tc *Toolchain) PchObjectFlags(header, compiled string) []string {
	if tc.pchObject == nil {
		return nil
	}

	return tc.pchObject(header, compiled)
}

// Identity returns the fields recorded in a target's build record
func (tc *Toolchain) Identity() record.ToolchainIdentity {
	return record.ToolchainIdentity{
		ID:          tc.id.String(),
		Name:        tc.name,
		Assembler:   tc.exes.Assembler,
		CCompiler:   tc.exes.CCompiler,
		CppCompiler: tc.exes.CppCompiler,
		Archiver:    tc.exes.Archiver,
		Linker:      tc.exes.Linker,
	}
}

// NewCustom creates a toolchain from caller supplied templates. Every
// buildable target kind must have compile and link templates.
func NewCustom(name string, exes Executables, cfg Config, templates map[record.TargetType]Templates, pchObject PchObjectFunc) (*Toolchain, error) {
	return newToolchain(Custom, name, exes, cfg, templates, pchObject)
}

func newToolchain(id ID, name string, exes Executables, cfg Config, templates map[record.TargetType]Templates, pchObject PchObjectFunc) (*Toolchain, error) {
	if name == "" {
		return nil, builderr.Configf("", "toolchain name must not be empty")
	}

	if cfg.ObjExt == "" {
		return nil, builderr.Configf(name, "toolchain object extension must not be empty")
	}

	copied := make(map[record.TargetType]Templates, len(templates))
	for _, kind := range []record.TargetType{record.Executable, record.StaticLibrary, record.DynamicLibrary} {
		tmpl, ok := templates[kind]
		if !ok || tmpl.Compile == "" || tmpl.Link == "" {
			return nil, builderr.Configf(name, "toolchain is missing %s templates", kind)
		}

		copied[kind] = tmpl.clone()
	}

	return &Toolchain{
		id:        id,
		name:      name,
		exes:      exes,
		config:    cfg.clone(),
		templates: copied,
		pchObject: pchObject,
	}, nil
}
