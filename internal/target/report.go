package target

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
)

// Event is a reason a target was rebuilt
type Event int

const (
	NoRecord Event = iota
	FlagChanged
	DirChanged
	PathChanged
	ToolchainChanged
	SourceAdded
	SourceUpdated
	SourceRemoved
	LinkChanged
)

func (e Event) String() string {
	switch e {
	case NoRecord:
		return "no record"
	case FlagChanged:
		return "flags changed"
	case DirChanged:
		return "directories changed"
	case PathChanged:
		return "paths changed"
	case ToolchainChanged:
		return "toolchain changed"
	case SourceAdded:
		return "source added"
	case SourceUpdated:
		return "source updated"
	case SourceRemoved:
		return "source removed"
	case LinkChanged:
		return "link inputs changed"
	default:
		return "unknown"
	}
}

// Report describes what the last run of a target did
type Report struct {
	// Compiled lists the sources compiled successfully, sorted
	Compiled    []string
	PchCompiled bool
	Linked      bool
	Events      map[Event]int
}

// Rebuilt reports whether the run did any work
func (r Report) Rebuilt() bool {
	return len(r.Compiled) > 0 || r.PchCompiled || r.Linked
}

// runState is the mutable state of one run. The tasks of a target run in
// sequence except for the compile children, so only the fields they touch
// are guarded by mu.
type runState struct {
	mu sync.Mutex

	cur   record.Target
	dirty bool

	// objects holds the sources whose object file is current
	objects       fingerprint.Set
	compileFailed bool
	pending       atomic.Int64

	report Report
}

func (r *runState) event(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.report.Events == nil {
		r.report.Events = make(map[Event]int)
	}

	r.report.Events[e]++
}

// Report returns what the last run did
func (t *Target) Report() Report {
	t.run.mu.Lock()
	defer t.run.mu.Unlock()

	r := t.run.report
	r.Compiled = slices.Clone(r.Compiled)
	sort.Strings(r.Compiled)
	r.Events = maps.Clone(r.Events)

	if r.Events == nil {
		r.Events = make(map[Event]int)
	}

	return r
}
