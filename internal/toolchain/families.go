package toolchain

import (
	"github.com/Norgate-AV/ccbuild/internal/record"
)

const (
	gccCompile = "{compiler} {preprocessor_flags} {include_dirs} {common_compile_flags} {pch_object_flags} {compile_flags} -o {output} -c {input}"
	gccPch     = "{compiler} {preprocessor_flags} {include_dirs} {common_compile_flags} {pch_compile_flags} {compile_flags} -o {output} -c {input}"

	gccLinkExecutable = "{cpp_compiler} {link_flags} {compiled_sources} -o {output} {lib_dirs} {lib_deps}"
	gccLinkStatic     = "{archiver} rcs {output} {compiled_sources}"
	gccLinkDynamic    = "{cpp_compiler} -shared {link_flags} {compiled_sources} -o {output}"

	msvcCompile = "{compiler} {preprocessor_flags} {include_dirs} {common_compile_flags} {pch_object_flags} {compile_flags} /Fo{output} /c {input}"
	msvcPch     = "{compiler} {preprocessor_flags} {include_dirs} {common_compile_flags} /Yc{input} /FI{input} /Fp{output} {pch_compile_flags} {compile_flags} /Fo{pch_object_output} /c {input_source}"

	msvcLinkExecutable = "{linker} {link_flags} {lib_dirs} /OUT:{output} {lib_deps} {compiled_sources}"
	msvcLinkStatic     = "{archiver} {link_flags} /OUT:{output} {compiled_sources}"
	msvcLinkDynamic    = "{linker} /DLL {link_flags} /OUT:{output}.dll /IMPLIB:{output} {compiled_sources}"
)

var (
	defaultAsmExt    = []string{".s", ".S", ".asm"}
	defaultCExt      = []string{".c"}
	defaultCppExt    = []string{".cpp", ".cxx", ".cc"}
	defaultHeaderExt = []string{".h", ".hpp"}
)

func gccConfig() Config {
	return Config{
		ObjExt:           ".o",
		PchHeaderExt:     ".h",
		PchCompileExt:    ".gch",
		PrefixIncludeDir: "-I",
		PrefixLibDir:     "-L",
		ValidAsmExt:      defaultAsmExt,
		ValidCExt:        defaultCExt,
		ValidCppExt:      defaultCppExt,
		ValidHeaderExt:   defaultHeaderExt,
	}
}

func gccTemplates(exeExt, staticExt, dynamicExt string) map[record.TargetType]Templates {
	return map[record.TargetType]Templates{
		record.Executable: {
			Compile:   gccCompile,
			Pch:       gccPch,
			Link:      gccLinkExecutable,
			OutputExt: exeExt,
		},
		record.StaticLibrary: {
			Compile:   gccCompile,
			Pch:       gccPch,
			Link:      gccLinkStatic,
			OutputExt: staticExt,
		},
		record.DynamicLibrary: {
			Compile:            gccCompile,
			Pch:                gccPch,
			Link:               gccLinkDynamic,
			OutputExt:          dynamicExt,
			CommonCompileFlags: []string{"-fpic"},
		},
	}
}

// gcc looks for <header>.gch when the header itself is included
func gccPchObject(header, compiled string) []string {
	return []string{"-include " + header, "-H"}
}

// NewGcc creates a GCC toolchain. Blank executables default to the GNU tools.
func NewGcc(name string, exes Executables) (*Toolchain, error) {
	exes = exes.merge(Executables{
		Assembler:   "as",
		CCompiler:   "gcc",
		CppCompiler: "g++",
		Archiver:    "ar",
		Linker:      "ld",
	})

	return newToolchain(Gcc, name, exes, gccConfig(), gccTemplates("", ".a", ".so"), gccPchObject)
}

// NewClang creates a Clang toolchain using the GCC command conventions
func NewClang(name string, exes Executables) (*Toolchain, error) {
	exes = exes.merge(Executables{
		Assembler:   "clang",
		CCompiler:   "clang",
		CppCompiler: "clang++",
		Archiver:    "llvm-ar",
		Linker:      "ld.lld",
	})

	return newToolchain(Clang, name, exes, gccConfig(), gccTemplates("", ".a", ".so"), gccPchObject)
}

// NewMinGW creates a MinGW toolchain
func NewMinGW(name string, exes Executables) (*Toolchain, error) {
	exes = exes.merge(Executables{
		Assembler:   "as",
		CCompiler:   "gcc",
		CppCompiler: "g++",
		Archiver:    "ar",
		Linker:      "ld",
	})

	return newToolchain(MinGW, name, exes, gccConfig(), gccTemplates(".exe", ".a", ".a"), gccPchObject)
}

// NewMsvc creates an MSVC toolchain
func NewMsvc(name string, exes Executables) (*Toolchain, error) {
	exes = exes.merge(Executables{
		Assembler:   "cl",
		CCompiler:   "cl",
		CppCompiler: "cl",
		Archiver:    "lib",
		Linker:      "link",
	})

	cfg := Config{
		ObjExt:           ".obj",
		PchHeaderExt:     ".h",
		PchCompileExt:    ".pch",
		PrefixIncludeDir: "/I",
		PrefixLibDir:     "/LIBPATH:",
		ValidAsmExt:      defaultAsmExt,
		ValidCExt:        defaultCExt,
		ValidCppExt:      defaultCppExt,
		ValidHeaderExt:   defaultHeaderExt,
		LinkPchObject:    true,
	}

	templates := make(map[record.TargetType]Templates, 3)
	for kind, link := range map[record.TargetType]string{
		record.Executable:     msvcLinkExecutable,
		record.StaticLibrary:  msvcLinkStatic,
		record.DynamicLibrary: msvcLinkDynamic,
	} {
		ext := ".lib"
		if kind == record.Executable {
			ext = ".exe"
		}

		templates[kind] = Templates{
			Compile:         msvcCompile,
			Pch:             msvcPch,
			Link:            link,
			OutputExt:       ext,
			CCompileFlags:   []string{"/nologo"},
			CppCompileFlags: []string{"/nologo", "/EHsc"},
			LinkFlags:       []string{"/nologo"},
		}
	}

	pchObject := func(header, compiled string) []string {
		return []string{"/Yu" + header, "/FI" + header, "/Fp" + compiled}
	}

	return newToolchain(Msvc, name, exes, cfg, templates, pchObject)
}
