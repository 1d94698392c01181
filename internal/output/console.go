// Package output prints user-facing build feedback to the terminal.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Console provides colored output functions for CLI feedback
type Console struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
}

// NewConsole creates a Console writing to stdout and stderr
func NewConsole() *Console {
	return &Console{
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// NewConsoleTo creates a Console writing to out and errOut
func NewConsoleTo(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

// SetNoColor disables colored output
func (c *Console) SetNoColor(noColor bool) {
	color.NoColor = noColor
}

// SetVerbose enables debug messages
func (c *Console) SetVerbose(verbose bool) {
	c.verbose = verbose
}

// Info prints an informational message in default color
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Warn prints a warning message in yellow
func (c *Console) Warn(format string, args ...any) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(c.errOut, "Warning: "+format+"\n", args...)
}

// Error prints an error message in red
func (c *Console) Error(format string, args ...any) {
	red := color.New(color.FgRed)
	red.Fprintf(c.errOut, "Error: "+format+"\n", args...)
}

// Success prints a success message in green with a check mark
func (c *Console) Success(format string, args ...any) {
	green := color.New(color.FgGreen)
	green.Fprintf(c.out, "✓ "+format+"\n", args...)
}

// Debug prints a debug message if verbose mode is enabled
func (c *Console) Debug(format string, args ...any) {
	if !c.verbose {
		return
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(c.out, "[DEBUG] "+format+"\n", args...)
}

// Bold prints a message in bold
func (c *Console) Bold(format string, args ...any) {
	bold := color.New(color.Bold)
	bold.Fprintf(c.out, format+"\n", args...)
}
