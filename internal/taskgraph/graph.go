// Package taskgraph composes build steps into a DAG and runs it on a fixed
// pool of workers.
//
// Tasks are functions connected by precedence edges. A running task may
// spawn child tasks through its Subflow; the task's successors then wait
// for every child as well (a join). Targets and generators contribute their
// steps as Units, and Depend wires one unit's exit task to another unit's
// entry task.
package taskgraph

import (
	"context"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
)

// Func is the body of a task
type Func func(ctx context.Context, sf *Subflow) error

// Task is a node of the graph
type Task struct {
	name  string
	fn    Func
	succ  []*Task
	preds int

	// run state, touched only by the executor loop
	pending  int
	poisoned bool
	done     bool
}

// Name returns the task name
func (t *Task) Name() string {
	return t.name
}

// Precede adds edges from t to others
func (t *Task) Precede(others ...*Task) *Task {
	for _, o := range others {
		if o == nil || o == t {
			continue
		}

		t.succ = append(t.succ, o)
		o.preds++
	}

	return t
}

// Succeed adds edges from others to t
func (t *Task) Succeed(others ...*Task) *Task {
	for _, o := range others {
		if o != nil {
			o.Precede(t)
		}
	}

	return t
}

// Subflow collects child tasks spawned by a running task
type Subflow struct {
	children []*Task
}

// Emplace spawns a child task. Children start once the spawning task
// returns successfully.
func (sf *Subflow) Emplace(name string, fn Func) *Task {
	t := &Task{name: name, fn: fn}
	sf.children = append(sf.children, t)
	return t
}

// Len returns the number of spawned children
func (sf *Subflow) Len() int {
	return len(sf.children)
}

// Unit is a buildable entity that contributes tasks to a graph
type Unit interface {
	Name() string
	Tasks(g *Graph) (entry, exit *Task, err error)
}

type unitTasks struct {
	entry, exit *Task
}

// Graph is a set of tasks and the units that created them
type Graph struct {
	tasks []*Task
	units map[string]unitTasks
	order []string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{units: make(map[string]unitTasks)}
}

// Emplace adds a task
func (g *Graph) Emplace(name string, fn Func) *Task {
	t := &Task{name: name, fn: fn}
	g.tasks = append(g.tasks, t)
	return t
}

// Len returns the number of static tasks
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Add lets u contribute its tasks. A unit may only be added once.
func (g *Graph) Add(u Unit) error {
	name := u.Name()
	if _, ok := g.units[name]; ok {
		return builderr.Configf(name, "unit is already registered in the task graph")
	}

	entry, exit, err := u.Tasks(g)
	if err != nil {
		return err
	}

	if entry == nil || exit == nil {
		return builderr.Configf(name, "unit contributed no tasks")
	}

	g.units[name] = unitTasks{entry: entry, exit: exit}
	g.order = append(g.order, name)
	return nil
}

// Depend makes dependent start only after dependency has finished. Both
// units must already be added.
func (g *Graph) Depend(dependent, dependency Unit) error {
	d, ok := g.units[dependent.Name()]
	if !ok {
		return builderr.Configf(dependent.Name(), "unit must be registered before declaring dependencies")
	}

	dep, ok := g.units[dependency.Name()]
	if !ok {
		return builderr.Configf(dependency.Name(), "dependency of %q must be registered first", dependent.Name())
	}

	if dependent.Name() == dependency.Name() {
		return builderr.Configf(dependent.Name(), "unit cannot depend on itself")
	}

	dep.exit.Precede(d.entry)
	return nil
}

// Units returns the registered unit names in registration order
func (g *Graph) Units() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// validate rejects cycles among the static tasks
func (g *Graph) validate() error {
	indeg := make(map[*Task]int, len(g.tasks))
	for _, t := range g.tasks {
		indeg[t] = t.preds
	}

	queue := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		if indeg[t] == 0 {
			queue = append(queue, t)
		}
	}

	visited := 0
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		visited++

		for _, s := range t.succ {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if visited != len(g.tasks) {
		for _, t := range g.tasks {
			if indeg[t] > 0 {
				return builderr.Configf("", "task graph contains a cycle through %q", t.name)
			}
		}
	}

	return nil
}
