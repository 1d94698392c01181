package project

import (
	"bytes"
	"errors"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/toolchain"
)

// DefaultManifest is the manifest file name looked up in the project root
const DefaultManifest = "ccbuild.toml"

// Manifest is the decoded form of a ccbuild.toml file
type Manifest struct {
	Toolchain  ToolchainSpec   `toml:"toolchain"`
	Targets    []TargetSpec    `toml:"target"`
	Generators []GeneratorSpec `toml:"generator"`
}

// ToolchainSpec selects the toolchain every target is built with
type ToolchainSpec struct {
	// ID is the family: gcc, clang, mingw or msvc
	ID          string                `toml:"id"`
	Name        string                `toml:"name"`
	Executables toolchain.Executables `toml:"executables"`
}

// GlobSpec adds the sources under Dir matching Pattern
type GlobSpec struct {
	Dir     string `toml:"dir"`
	Pattern string `toml:"pattern"`
}

// FlagsSpec holds the flags of a target by kind
type FlagsSpec struct {
	Preprocessor []string `toml:"preprocessor"`
	Common       []string `toml:"common"`
	Pch          []string `toml:"pch"`
	PchObject    []string `toml:"pch_object"`
	Asm          []string `toml:"asm"`
	C            []string `toml:"c"`
	Cpp          []string `toml:"cpp"`
	Link         []string `toml:"link"`
}

// TargetSpec declares a target
type TargetSpec struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Root string `toml:"root"`

	Sources     []string   `toml:"sources"`
	Globs       []GlobSpec `toml:"globs"`
	Headers     []string   `toml:"headers"`
	Pchs        []string   `toml:"pchs"`
	IncludeDirs []string   `toml:"include_dirs"`
	LibDirs     []string   `toml:"lib_dirs"`

	// LibDeps name other targets of the manifest or library paths
	LibDeps      []string `toml:"lib_deps"`
	ExternalLibs []string `toml:"external_libs"`

	CompileDependencies []string `toml:"compile_dependencies"`
	LinkDependencies    []string `toml:"link_dependencies"`

	Flags FlagsSpec `toml:"flags"`

	// Deps name targets or generators that must finish first
	Deps []string `toml:"deps"`
}

// IDSpec declares one generator ID
type IDSpec struct {
	Name     string         `toml:"name"`
	Inputs   []string       `toml:"inputs"`
	Outputs  []string       `toml:"outputs"`
	Commands []string       `toml:"commands"`
	Parallel bool           `toml:"parallel"`
	Blob     map[string]any `toml:"blob"`
}

// GroupSpec runs IDs as one unit
type GroupSpec struct {
	Name string   `toml:"name"`
	IDs  []string `toml:"ids"`
}

// OrderSpec makes To run after From
type OrderSpec struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// GeneratorSpec declares a generator
type GeneratorSpec struct {
	Name     string            `toml:"name"`
	Root     string            `toml:"root"`
	Patterns map[string]string `toml:"patterns"`
	IDs      []IDSpec          `toml:"id"`
	Groups   []GroupSpec       `toml:"group"`
	Order    []OrderSpec       `toml:"order"`
	Deps     []string          `toml:"deps"`
}

// LoadManifest reads and decodes the manifest at path. Unknown keys are
// rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, builderr.Config("", "read manifest", err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes a manifest and checks unit names
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&m); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, builderr.Config("", "decode manifest", errors.New(strict.String()))
		}

		return nil, builderr.Config("", "decode manifest", err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Targets) == 0 && len(m.Generators) == 0 {
		return builderr.Configf("", "manifest declares no targets or generators")
	}

	seen := make(map[string]string)
	check := func(kind, name string) error {
		if name == "" {
			return builderr.Configf("", "%s without a name", kind)
		}

		if prev, ok := seen[name]; ok {
			return builderr.Configf(name, "%s name already used by a %s", kind, prev)
		}

		seen[name] = kind
		return nil
	}

	for _, t := range m.Targets {
		if err := check("target", t.Name); err != nil {
			return err
		}
	}

	for _, g := range m.Generators {
		if err := check("generator", g.Name); err != nil {
			return err
		}
	}

	return nil
}
