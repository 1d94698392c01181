package generator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/staleness"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
)

// Event is a reason an ID reran
type Event int

const (
	NoRecord Event = iota
	IDAdded
	IDRemoved
	InputsChanged
	OutputsChanged
	CommandsChanged
	BlobChanged
	OutputMissing
)

func (e Event) String() string {
	switch e {
	case NoRecord:
		return "no record"
	case IDAdded:
		return "id added"
	case IDRemoved:
		return "id removed"
	case InputsChanged:
		return "inputs changed"
	case OutputsChanged:
		return "outputs changed"
	case CommandsChanged:
		return "commands changed"
	case BlobChanged:
		return "blob changed"
	case OutputMissing:
		return "output missing"
	default:
		return "unknown"
	}
}

// Report describes what the last run of a generator did
type Report struct {
	// Ran lists the IDs whose commands all succeeded, sorted
	Ran    []string
	Events map[Event]int
}

type runState struct {
	mu sync.Mutex

	valid map[string]record.GeneratorID
	edges map[string][]string

	dirty   bool
	failed  bool
	skipped map[string]bool
	pending atomic.Int64

	report Report
}

// Report returns what the last run did
func (g *Generator) Report() Report {
	g.run.mu.Lock()
	defer g.run.mu.Unlock()

	r := Report{
		Ran:    slices.Clone(g.run.report.Ran),
		Events: maps.Clone(g.run.report.Events),
	}

	sort.Strings(r.Ran)
	if r.Events == nil {
		r.Events = make(map[Event]int)
	}

	return r
}

var _ taskgraph.Unit = (*Generator)(nil)

// Tasks contributes the generate task. Every ID or group is spawned as one
// of its children.
func (g *Generator) Tasks(tg *taskgraph.Graph) (entry, exit *taskgraph.Task, err error) {
	g.mu.Lock()
	built := g.locked && g.units != nil
	g.mu.Unlock()

	if !built {
		return nil, nil, builderr.Configf(g.name, "generator must be built before it is added to a task graph")
	}

	g.run.mu.Lock()
	g.run.valid = nil
	g.run.edges = nil
	g.run.dirty = false
	g.run.failed = false
	g.run.skipped = make(map[string]bool)
	g.run.pending.Store(0)
	g.run.report = Report{Events: make(map[Event]int)}
	g.run.mu.Unlock()

	t := tg.Emplace(g.name+":generate", g.generateTask)
	return t, t, nil
}

func (g *Generator) event(e Event, field string, diff func() string) {
	g.run.mu.Lock()
	g.run.report.Events[e]++
	g.run.mu.Unlock()

	g.logger.Debug("generator is stale", "reason", e.String(), "id", field)

	if !g.env.Explain() {
		return
	}

	if diff != nil {
		if text := diff(); text != "" {
			g.logger.Info("rerun", "reason", e.String(), "id", field, "diff", text)
			return
		}
	}

	g.logger.Info("rerun", "reason", e.String(), "id", field)
}

func (g *Generator) generateTask(ctx context.Context, sf *taskgraph.Subflow) error {
	g.setState(Running)

	dirty := false
	if g.prev == nil {
		g.event(NoRecord, "", nil)
		dirty = true
	} else {
		removed := make([]string, 0)
		for name := range g.prev.IDs {
			if _, ok := g.ids[name]; !ok {
				removed = append(removed, name)
			}
		}

		sort.Strings(removed)
		for _, name := range removed {
			g.event(IDRemoved, name, nil)
			dirty = true
		}

		for _, name := range g.order {
			entry := g.ids[name]
			prev, ok := g.prev.IDs[name]
			if ok && entry.blob != nil && len(prev.Blob) > 0 && !entry.blob.Verify(prev.Blob) {
				g.setState(Failed)
				return builderr.Serializationf(g.name, errors.New("verification failed"), "load blob of id %q", name)
			}
		}
	}

	g.run.mu.Lock()
	g.run.valid = make(map[string]record.GeneratorID, len(g.order))
	g.run.edges = g.edges
	g.run.dirty = dirty
	g.run.mu.Unlock()

	if len(g.units) == 0 {
		return g.complete()
	}

	g.run.pending.Store(int64(len(g.units)))

	// A clean unit still runs as a child so that ordering through it holds
	tasks := make(map[string]*taskgraph.Task, len(g.units))
	for _, u := range g.units {
		tasks[u.name] = sf.Emplace(g.name+":"+u.name, func(ctx context.Context, _ *taskgraph.Subflow) error {
			return g.runUnit(ctx, u)
		})
	}

	for from, tos := range g.edges {
		for _, to := range tos {
			tasks[from].Precede(tasks[to])
		}
	}

	return nil
}

// check fingerprints the IDs of a unit and reports whether any of them
// must rerun. It runs after every unit ordered before u has finished, so
// inputs produced by those units are seen as they are now.
func (g *Generator) check(u *unit) (map[string]record.GeneratorID, bool, error) {
	fp := g.env.Fingerprinter()
	cur := make(map[string]record.GeneratorID, len(u.ids))
	run := false

	for _, entry := range u.ids {
		inputs, err := entry.inputs.Convert(fp)
		if err != nil {
			return nil, false, builderr.Stalenessf(g.name, err, "fingerprint inputs of id %q", entry.name)
		}

		cur[entry.name] = record.GeneratorID{
			Inputs:   inputs,
			Outputs:  slices.Clone(entry.outputs),
			Commands: slices.Clone(entry.commands),
			Blob:     entry.blobData,
		}
	}

	if g.prev == nil {
		return cur, true, nil
	}

	for _, entry := range u.ids {
		if g.stale(entry, cur[entry.name], fp.Mode()) {
			run = true
		}
	}

	return cur, run, nil
}

// stale decides whether an ID reruns
func (g *Generator) stale(entry *id, cur record.GeneratorID, mode fingerprint.Mode) bool {
	prev, ok := g.prev.IDs[entry.name]
	if !ok {
		g.event(IDAdded, entry.name, nil)
		return true
	}

	switch {
	case staleness.DiffPaths(prev.Inputs, cur.Inputs, mode) != staleness.NoChange:
		g.event(InputsChanged, entry.name, func() string {
			return staleness.ExplainPaths("inputs", prev.Inputs, cur.Inputs)
		})
	case staleness.StringsChanged(prev.Outputs, cur.Outputs):
		g.event(OutputsChanged, entry.name, func() string {
			return staleness.Explain("outputs", prev.Outputs, cur.Outputs)
		})
	case staleness.OrderedChanged(prev.Commands, cur.Commands):
		g.event(CommandsChanged, entry.name, func() string {
			return staleness.Explain("commands", prev.Commands, cur.Commands)
		})
	case blobChanged(entry, prev.Blob):
		g.event(BlobChanged, entry.name, nil)
	case missingOutput(cur.Outputs) != "":
		missing := missingOutput(cur.Outputs)
		g.event(OutputMissing, entry.name, func() string {
			return missing
		})
	default:
		return false
	}

	return true
}

func blobChanged(entry *id, prev []byte) bool {
	if entry.blob == nil {
		return len(prev) > 0
	}

	if len(prev) == 0 {
		return true
	}

	return !entry.blob.Equal(prev, entry.blobData)
}

func missingOutput(outputs []string) string {
	for _, out := range outputs {
		if _, err := os.Stat(out); err != nil {
			return out
		}
	}

	return ""
}

func (g *Generator) runUnit(ctx context.Context, u *unit) error {
	cur, run, err := g.check(u)
	if err == nil && run {
		for _, entry := range u.ids {
			if err = g.runID(ctx, entry); err != nil {
				break
			}
		}
	}

	g.run.mu.Lock()
	if err == nil {
		for _, entry := range u.ids {
			g.run.valid[entry.name] = cur[entry.name]
			if run {
				g.run.report.Ran = append(g.run.report.Ran, entry.name)
			}
		}
	}

	if run || err != nil {
		g.run.dirty = true
	}
	g.run.mu.Unlock()

	if perr := g.finish(u, err == nil); perr != nil {
		g.setState(Failed)
		return perr
	}

	if err != nil {
		g.setState(Failed)
		return err
	}

	return nil
}

func (g *Generator) runID(ctx context.Context, entry *id) error {
	for _, out := range entry.outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return builderr.Exec(g.name, fmt.Sprintf("create output directory of id %q", entry.name), "", nil, err)
		}
	}

	g.logger.Info("running", "id", entry.name)

	for _, cmd := range entry.commands {
		g.logger.Debug("running command", "id", entry.name, "command", cmd)

		res, err := g.env.Executor().Execute(ctx, cmd, g.rootDir)
		if err != nil {
			return builderr.Exec(g.name, fmt.Sprintf("run id %q", entry.name), cmd, nil, err)
		}

		if !res.Success {
			return builderr.Exec(g.name, fmt.Sprintf("run id %q", entry.name), cmd, res.Stderr, fmt.Errorf("exit status %d", res.ExitCode))
		}
	}

	return nil
}

// finish accounts for a finished child. When it fails, the children that
// will be skipped because of it are accounted for as well; their IDs keep
// the entries of the previous record. The last child stores the record.
func (g *Generator) finish(u *unit, ok bool) error {
	g.run.mu.Lock()
	n := int64(1)
	if !ok {
		g.run.failed = true

		queue := append([]string(nil), g.run.edges[u.name]...)
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]

			if g.run.skipped[name] {
				continue
			}

			g.run.skipped[name] = true
			n++
			queue = append(queue, g.run.edges[name]...)

			if g.prev == nil {
				continue
			}

			for _, entry := range g.byUnit[name].ids {
				if prev, found := g.prev.IDs[entry.name]; found {
					g.run.valid[entry.name] = prev
				}
			}
		}
	}
	g.run.mu.Unlock()

	if g.run.pending.Add(-n) != 0 {
		return nil
	}

	return g.complete()
}

// complete stores the record once every child has finished
func (g *Generator) complete() error {
	g.run.mu.Lock()
	valid := maps.Clone(g.run.valid)
	dirty := g.run.dirty
	failed := g.run.failed
	g.run.mu.Unlock()

	if dirty {
		if err := g.persist(valid); err != nil {
			g.setState(Failed)
			return err
		}
	} else {
		g.logger.Debug("generator is up to date")
	}

	if !failed {
		g.setState(Done)
	}

	return nil
}

func (g *Generator) persist(ids map[string]record.GeneratorID) error {
	rec := &record.Generator{Name: g.name, IDs: ids}

	if err := g.store.StoreGenerator(g.env.Fingerprinter().Mode(), rec); err != nil {
		return builderr.Serializationf(g.name, err, "store record %s", g.store.Path())
	}

	g.logger.Debug("stored record", "path", g.store.Path(), "ids", len(ids))
	return nil
}
