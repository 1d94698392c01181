// Package builderr defines the error taxonomy shared by the build engine.
//
// Configuration and serialization errors are fatal for the whole run.
// Toolchain execution errors only abort the failing unit and its dependents.
// Staleness check errors never reach the caller: they are logged and the
// affected unit is rebuilt from scratch.
package builderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a build error
type Kind int

const (
	// Configuration marks a programming error in the build declaration
	Configuration Kind = iota
	// StalenessCheck marks an unreadable or malformed build record
	StalenessCheck
	// ToolchainExecution marks a command that exited non-zero
	ToolchainExecution
	// Serialization marks a failure to persist a build record
	Serialization
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case StalenessCheck:
		return "staleness check error"
	case ToolchainExecution:
		return "toolchain execution error"
	case Serialization:
		return "serialization error"
	default:
		return "unknown error"
	}
}

var (
	// ErrLocked is returned when a declaration is mutated after Build
	ErrLocked = errors.New("lock violation: unit is locked for building")

	// ErrBadExtension is returned for a source with an unsupported extension
	ErrBadExtension = errors.New("bad extension")
)

// Error is a build error attributed to a target or generator
type Error struct {
	Kind Kind

	// Unit is the target or generator name
	Unit string

	// Op names the step or contract that failed
	Op string

	// Command and Stderr are set for execution errors
	Command string
	Stderr  []byte

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())

	if e.Unit != "" {
		fmt.Fprintf(&b, " in %q", e.Unit)
	}

	if e.Op != "" {
		fmt.Fprintf(&b, ": %s", e.Op)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	if e.Command != "" {
		fmt.Fprintf(&b, "\n  command: %s", e.Command)
	}

	if stderr := strings.TrimSpace(string(e.Stderr)); stderr != "" {
		fmt.Fprintf(&b, "\n  stderr: %s", stderr)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configf creates a configuration error for unit
func Configf(unit string, format string, args ...any) *Error {
	return &Error{
		Kind: Configuration,
		Unit: unit,
		Err:  fmt.Errorf(format, args...),
	}
}

// Config wraps err as a configuration error raised by op
func Config(unit, op string, err error) *Error {
	return &Error{Kind: Configuration, Unit: unit, Op: op, Err: err}
}

// Exec creates a toolchain execution error for a failed command
func Exec(unit, op, command string, stderr []byte, err error) *Error {
	return &Error{
		Kind:    ToolchainExecution,
		Unit:    unit,
		Op:      op,
		Command: command,
		Stderr:  stderr,
		Err:     err,
	}
}

// Serializationf creates a serialization error for unit
func Serializationf(unit string, err error, format string, args ...any) *Error {
	return &Error{
		Kind: Serialization,
		Unit: unit,
		Op:   fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// Stalenessf creates a staleness check error
func Stalenessf(unit string, err error, format string, args ...any) *Error {
	return &Error{
		Kind: StalenessCheck,
		Unit: unit,
		Op:   fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// IsKind reports whether any error in err's chain is a build error of kind
func IsKind(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}

	return false
}

// IsFatal reports whether err must abort the whole build
func IsFatal(err error) bool {
	return IsKind(err, Configuration) || IsKind(err, Serialization)
}
