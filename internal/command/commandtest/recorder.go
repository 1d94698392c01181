// Package commandtest provides a recording command.Executor for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/Norgate-AV/ccbuild/internal/command"
)

// Call is one recorded command
type Call struct {
	Command string
	Dir     string
}

// Recorder records every command it is asked to run. Handler, when set,
// decides the result; otherwise every command succeeds.
type Recorder struct {
	Handler func(cmd string) *command.Result

	mu    sync.Mutex
	calls []Call
}

// Execute implements command.Executor
func (r *Recorder) Execute(ctx context.Context, cmd, dir string) (*command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Command: cmd, Dir: dir})
	handler := r.Handler
	r.mu.Unlock()

	if handler != nil {
		if res := handler(cmd); res != nil {
			return res, nil
		}
	}

	return &command.Result{Success: true}, nil
}

// Calls returns the recorded calls in execution order
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Commands returns the recorded command lines
func (r *Recorder) Commands() []string {
	calls := r.Calls()

	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}

	return out
}

// Count returns how many recorded commands contain substr
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, c := range r.Commands() {
		if strings.Contains(c, substr) {
			n++
		}
	}

	return n
}

// Reset forgets every recorded call
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// FailOn returns a handler that fails every command containing substr
func FailOn(substr string) func(string) *command.Result {
	return func(cmd string) *command.Result {
		if strings.Contains(cmd, substr) {
			return &command.Result{Success: false, ExitCode: 1, Stderr: []byte("error: " + substr)}
		}

		return nil
	}
}
