package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	var out, errOut bytes.Buffer
	c := NewConsoleTo(&out, &errOut)
	c.SetNoColor(true)

	return c, &out, &errOut
}

func TestConsole(t *testing.T) {
	c, out, errOut := newTestConsole(t)

	c.Info("building %d targets", 2)
	c.Success("done")
	c.Warn("glob matched nothing")
	c.Error("link failed")
	c.Debug("hidden")

	assert.Equal(t, "building 2 targets\n✓ done\n", out.String())
	assert.Equal(t, "Warning: glob matched nothing\nError: link failed\n", errOut.String())

	out.Reset()
	c.SetVerbose(true)
	c.Debug("shown %s", "now")
	assert.Equal(t, "[DEBUG] shown now\n", out.String())
}

func TestConsole_Summary(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		out     string
		errOut  string
	}{
		{
			name: "success",
			summary: Summary{
				Rebuilt:  []string{"app"},
				UpToDate: []string{"util", "proto"},
				Elapsed:  1500 * time.Millisecond,
			},
			out: "✓ build succeeded in 1.5s: 1 rebuilt, 2 up to date\n",
		},
		{
			name: "failure",
			summary: Summary{
				Failed:  []string{"util"},
				Skipped: []string{"app"},
				Elapsed: 20 * time.Millisecond,
			},
			errOut: "Error: util failed\nWarning: app skipped\nError: build failed after 20ms: 1 failed, 1 skipped\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out, errOut := newTestConsole(t)
			c.Summary(tt.summary)

			assert.Equal(t, tt.out, out.String())
			assert.Equal(t, tt.errOut, errOut.String())
		})
	}
}
