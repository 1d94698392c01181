package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
)

// TaskState is the overall outcome of a run
type TaskState int32

const (
	Success TaskState = iota
	Failure
)

func (s TaskState) String() string {
	if s == Success {
		return "success"
	}

	return "failure"
}

// Result summarises a run
type Result struct {
	State     TaskState
	Succeeded []string
	Failed    []string
	Skipped   []string
	Errors    []error
}

// Err joins every task error
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Executor runs graphs on a fixed number of workers
type Executor struct {
	Jobs   int
	Logger *slog.Logger
}

type completion struct {
	task     *Task
	err      error
	children []*Task
}

// Run executes g. Tasks whose predecessors all succeeded are started as
// workers free up. When a task fails its dependents are skipped while
// independent tasks carry on. A fatal error, or cancellation of ctx, stops
// any further dispatch; running tasks are allowed to finish.
//
// The returned error is the fatal error or the context error, if any.
// Failures of individual tasks are reported in the Result.
func (e *Executor) Run(ctx context.Context, g *Graph) (*Result, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	jobs := e.Jobs
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Written by workers, read once the graph has drained
	var state atomic.Int32

	res := &Result{}
	all := make([]*Task, 0, len(g.tasks))
	ready := make([]*Task, 0, len(g.tasks))

	for _, t := range g.tasks {
		t.pending = t.preds
		t.poisoned = false
		t.done = false
		all = append(all, t)

		if t.pending == 0 {
			ready = append(ready, t)
		}
	}

	remaining := len(all)
	done := make(chan completion)
	running := 0

	var fatal error

	var release func(t *Task, failed bool)
	release = func(t *Task, failed bool) {
		for _, s := range t.succ {
			if failed {
				s.poisoned = true
			}

			s.pending--
			if s.pending > 0 {
				continue
			}

			if s.poisoned {
				s.done = true
				remaining--
				res.Skipped = append(res.Skipped, s.name)
				logger.Debug("skipping task", "task", s.name)
				release(s, true)
				continue
			}

			ready = append(ready, s)
		}
	}

	for remaining > 0 {
		if fatal == nil && ctx.Err() == nil {
			for len(ready) > 0 && running < jobs {
				t := ready[0]
				ready = ready[1:]
				running++

				go e.run(ctx, logger, t, &state, done)
			}
		}

		if running == 0 {
			break
		}

		c := <-done
		running--
		remaining--
		c.task.done = true

		if c.err != nil {
			res.Failed = append(res.Failed, c.task.name)
			res.Errors = append(res.Errors, c.err)

			if builderr.IsFatal(c.err) && fatal == nil {
				fatal = c.err
			}

			release(c.task, true)
			continue
		}

		res.Succeeded = append(res.Succeeded, c.task.name)

		// Children join into the parent's successors
		for _, ch := range c.children {
			all = append(all, ch)
			remaining++

			for _, s := range c.task.succ {
				ch.succ = append(ch.succ, s)
				s.pending++
			}
		}

		for _, ch := range c.children {
			ch.pending = ch.preds
			if ch.pending == 0 {
				ready = append(ready, ch)
			}
		}

		release(c.task, false)
	}

	for _, t := range all {
		if !t.done {
			res.Skipped = append(res.Skipped, t.name)
		}
	}

	if len(res.Skipped) > 0 && (fatal != nil || ctx.Err() != nil) {
		state.Store(int32(Failure))
	}

	res.State = TaskState(state.Load())

	if fatal != nil {
		return res, fatal
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	return res, nil
}

func (e *Executor) run(ctx context.Context, logger *slog.Logger, t *Task, state *atomic.Int32, done chan<- completion) {
	sf := &Subflow{}

	logger.Debug("starting task", "task", t.name)

	err := call(ctx, t, sf)
	if err != nil {
		state.Store(int32(Failure))
		logger.Error("task failed", "task", t.name, "error", err)
	}

	done <- completion{task: t, err: err, children: sf.children}
}

func call(ctx context.Context, t *Task, sf *Subflow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.name, r)
		}
	}()

	if t.fn == nil {
		return nil
	}

	return t.fn(ctx, sf)
}
