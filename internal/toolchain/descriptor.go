package toolchain

import (
	"github.com/Norgate-AV/ccbuild/internal/builderr"
)

// Descriptor is a toolchain verified by an external discovery step. All
// executables are resolved paths.
type Descriptor struct {
	Name        string
	Executables Executables
	Version     string
	Arch        string
}

// FromDescriptor creates a toolchain of family id from a discovered
// descriptor. Every executable the family runs must be present.
func FromDescriptor(id ID, d Descriptor) (*Toolchain, error) {
	exes := d.Executables

	for _, req := range []struct {
		name, value string
	}{
		{"c compiler", exes.CCompiler},
		{"c++ compiler", exes.CppCompiler},
		{"archiver", exes.Archiver},
		{"linker", exes.Linker},
	} {
		if req.value == "" {
			return nil, builderr.Configf(d.Name, "toolchain descriptor is missing the %s executable", req.name)
		}
	}

	switch id {
	case Gcc:
		return NewGcc(d.Name, exes)
	case Clang:
		return NewClang(d.Name, exes)
	case MinGW:
		return NewMinGW(d.Name, exes)
	case Msvc:
		return NewMsvc(d.Name, exes)
	default:
		return nil, builderr.Configf(d.Name, "cannot create a %s toolchain from a descriptor", id)
	}
}
