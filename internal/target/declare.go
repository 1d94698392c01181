package target

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
	"github.com/Norgate-AV/ccbuild/internal/toolchain"
)

// AddSource declares a source file. Relative paths are resolved against the
// target root. The file does not need to exist until the compile step.
func (t *Target) AddSource(path string) error {
	return t.mutate("add source", func() error {
		t.sources.Add(t.resolve(path))
		return nil
	})
}

// AddSources declares several source files
func (t *Target) AddSources(paths ...string) error {
	for _, p := range paths {
		if err := t.AddSource(p); err != nil {
			return err
		}
	}

	return nil
}

// GlobSources declares every existing source file below dir whose
// slash-separated path relative to dir matches pattern. dir is relative to
// the target root. It returns the number of files added.
func (t *Target) GlobSources(dir, pattern string) (int, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return 0, builderr.Config(t.name, "glob sources", fmt.Errorf("invalid pattern %q: %w", pattern, err))
	}

	base := t.resolve(dir)

	var matches []string

	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}

		if !g.Match(filepath.ToSlash(rel)) {
			return nil
		}

		switch t.config.FileType(path) {
		case toolchain.Asm, toolchain.C, toolchain.Cpp:
			matches = append(matches, path)
		}

		return nil
	})
	if err != nil {
		return 0, builderr.Config(t.name, "glob sources", err)
	}

	added := 0
	err = t.mutate("glob sources", func() error {
		for _, m := range matches {
			if t.sources.Add(m) {
				added++
			}
		}

		return nil
	})

	return added, err
}

// AddHeader declares a header whose change recompiles every source
func (t *Target) AddHeader(path string) error {
	return t.mutate("add header", func() error {
		t.headers.Add(t.resolve(path))
		return nil
	})
}

// AddPch declares a header to be precompiled
func (t *Target) AddPch(path string) error {
	return t.mutate("add pch", func() error {
		t.pchs.Add(t.resolve(path))
		return nil
	})
}

// AddIncludeDir declares an include directory
func (t *Target) AddIncludeDir(dir string) error {
	return t.mutate("add include dir", func() error {
		t.includeDirs = appendUnique(t.includeDirs, t.resolve(dir))
		return nil
	})
}

// AddLibDir declares a library search directory
func (t *Target) AddLibDir(dir string) error {
	return t.mutate("add lib dir", func() error {
		t.libDirs = appendUnique(t.libDirs, t.resolve(dir))
		return nil
	})
}

// AddLibDep declares a library file to link against. Link order follows
// declaration order.
func (t *Target) AddLibDep(path string) error {
	return t.mutate("add lib dep", func() error {
		t.libDeps.Add(t.resolve(path))
		return nil
	})
}

// AddLibDepTarget links against dep's output and orders this target after it
func (t *Target) AddLibDepTarget(dep *Target) error {
	if dep == nil {
		return builderr.Configf(t.name, "nil library dependency")
	}

	if dep.Type() == t.typ && dep == t {
		return builderr.Configf(t.name, "target cannot link against itself")
	}

	return t.mutate("add lib dep", func() error {
		t.libDeps.Add(dep.OutputPath())
		t.deps = append(t.deps, dep)
		return nil
	})
}

// AddExternalLibDep declares a library passed to the linker verbatim, such
// as "-lpthread" or "user32.lib"
func (t *Target) AddExternalLibDep(lib string) error {
	return t.mutate("add external lib dep", func() error {
		if lib == "" {
			return builderr.Configf(t.name, "empty external library")
		}

		t.externalLibDeps = appendUnique(t.externalLibDeps, lib)
		return nil
	})
}

// AddCompileDependency declares an extra file whose change recompiles every
// source
func (t *Target) AddCompileDependency(path string) error {
	return t.mutate("add compile dependency", func() error {
		t.compileDeps.Add(t.resolve(path))
		return nil
	})
}

// AddLinkDependency declares an extra file whose change relinks the target
func (t *Target) AddLinkDependency(path string) error {
	return t.mutate("add link dependency", func() error {
		t.linkDeps.Add(t.resolve(path))
		return nil
	})
}

// DependsOn orders this target after u in the task graph
func (t *Target) DependsOn(u taskgraph.Unit) error {
	return t.mutate("add dependency", func() error {
		if u == nil {
			return builderr.Configf(t.name, "nil dependency")
		}

		if u.Name() == t.name {
			return builderr.Configf(t.name, "target cannot depend on itself")
		}

		t.deps = append(t.deps, u)
		return nil
	})
}

// Dependencies returns the units this target must follow
func (t *Target) Dependencies() []taskgraph.Unit {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]taskgraph.Unit, len(t.deps))
	copy(out, t.deps)
	return out
}

// Sources returns the declared sources in declaration order
func (t *Target) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sources.User()
}
