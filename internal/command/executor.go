package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// Result is the outcome of one command
type Result struct {
	// Success is true when the process exited with status zero
	Success  bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Executor runs a command line in a directory. The returned error is only
// set when the process could not be started; a non-zero exit is reported
// through Result.Success.
type Executor interface {
	Execute(ctx context.Context, command, dir string) (*Result, error)
}

// Commander interface for testing
type Commander interface {
	Run() error
}

// ShellExecutor runs commands through the platform shell
type ShellExecutor struct {
	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// NewShellExecutor creates an executor backed by os/exec
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// Execute runs command with dir as the working directory
func (e *ShellExecutor) Execute(ctx context.Context, command, dir string) (*Result, error) {
	name, args := shellArgs(command)

	var stdout, stderr bytes.Buffer

	c := e.execCommand(ctx, name, args...)
	if cmd, ok := c.(*exec.Cmd); ok {
		cmd.Dir = dir
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := c.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Success:  false,
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.Bytes(),
				Stderr:   stderr.Bytes(),
			}, nil
		}

		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	return &Result{
		Success: true,
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
	}, nil
}

func shellArgs(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}

	return "sh", []string{"-c", command}
}
