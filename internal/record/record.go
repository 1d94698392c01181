package record

import (
	"fmt"
	"strings"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

// TargetType is the kind of unit a record describes
type TargetType int

const (
	Undefined TargetType = iota
	Executable
	StaticLibrary
	DynamicLibrary
	GeneratorType
)

func (t TargetType) String() string {
	switch t {
	case Executable:
		return "executable"
	case StaticLibrary:
		return "static_library"
	case DynamicLibrary:
		return "dynamic_library"
	case GeneratorType:
		return "generator"
	default:
		return "undefined"
	}
}

// IsBuildable reports whether t is a compiled target kind
func (t TargetType) IsBuildable() bool {
	return t == Executable || t == StaticLibrary || t == DynamicLibrary
}

// MarshalText encodes the type by name
func (t TargetType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name
func (t *TargetType) UnmarshalText(text []byte) error {
	parsed, err := ParseTargetType(string(text))
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

// ParseTargetType parses a target type name
func ParseTargetType(s string) (TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "executable", "exe":
		return Executable, nil
	case "static", "static_library", "staticlib":
		return StaticLibrary, nil
	case "dynamic", "shared", "dynamic_library", "dynamiclib":
		return DynamicLibrary, nil
	case "generator":
		return GeneratorType, nil
	case "undefined":
		return Undefined, nil
	default:
		return Undefined, fmt.Errorf("invalid target type: %q", s)
	}
}

// ToolchainIdentity is the part of a toolchain that invalidates objects
// when it changes
type ToolchainIdentity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Assembler   string `json:"assembler"`
	CCompiler   string `json:"c_compiler"`
	CppCompiler string `json:"cpp_compiler"`
	Archiver    string `json:"archiver"`
	Linker      string `json:"linker"`
}

// Target is the snapshot of a target's last successful build
type Target struct {
	Name      string            `json:"name"`
	Type      TargetType        `json:"type"`
	Toolchain ToolchainIdentity `json:"toolchain"`

	Sources fingerprint.Set `json:"sources"`
	Headers fingerprint.Set `json:"headers"`
	Pchs    fingerprint.Set `json:"pchs"`
	LibDeps fingerprint.Set `json:"lib_deps"`

	// Order matters for the linker
	ExternalLibDeps []string `json:"external_lib_deps"`

	IncludeDirs []string `json:"include_dirs"`
	LibDirs     []string `json:"lib_dirs"`

	PreprocessorFlags  []string `json:"preprocessor_flags"`
	CommonCompileFlags []string `json:"common_compile_flags"`
	PchCompileFlags    []string `json:"pch_compile_flags"`
	PchObjectFlags     []string `json:"pch_object_flags"`
	AsmCompileFlags    []string `json:"asm_compile_flags"`
	CCompileFlags      []string `json:"c_compile_flags"`
	CppCompileFlags    []string `json:"cpp_compile_flags"`
	LinkFlags          []string `json:"link_flags"`

	CompileDependencies fingerprint.Set `json:"compile_dependencies"`
	LinkDependencies    fingerprint.Set `json:"link_dependencies"`

	PchCompiled  bool `json:"pch_compiled"`
	TargetLinked bool `json:"target_linked"`
}

// GeneratorID is the snapshot of one generator ID
type GeneratorID struct {
	Inputs   fingerprint.Set `json:"inputs"`
	Outputs  []string        `json:"outputs"`
	Commands []string        `json:"commands"`
	Blob     []byte          `json:"blob"`
}

// Generator is the snapshot of a generator's last successful run
type Generator struct {
	Name string                 `json:"name"`
	IDs  map[string]GeneratorID `json:"ids"`
}
