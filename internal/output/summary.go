package output

import (
	"time"
)

// Summary is the outcome of a build, by unit name
type Summary struct {
	Rebuilt  []string
	UpToDate []string
	Failed   []string
	Skipped  []string
	Elapsed  time.Duration
}

// OK reports whether every unit finished
func (s Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Skipped) == 0
}

// Summary prints the outcome of a build
func (c *Console) Summary(s Summary) {
	for _, name := range s.Rebuilt {
		c.Debug("%s rebuilt", name)
	}

	for _, name := range s.UpToDate {
		c.Debug("%s up to date", name)
	}

	for _, name := range s.Failed {
		c.Error("%s failed", name)
	}

	for _, name := range s.Skipped {
		c.Warn("%s skipped", name)
	}

	elapsed := s.Elapsed.Round(time.Millisecond)

	if !s.OK() {
		c.Error("build failed after %s: %d failed, %d skipped", elapsed, len(s.Failed), len(s.Skipped))
		return
	}

	c.Success("build succeeded in %s: %d rebuilt, %d up to date", elapsed, len(s.Rebuilt), len(s.UpToDate))
}
