package target

import (
	"slices"
	"sort"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
	"github.com/Norgate-AV/ccbuild/internal/record"
	"github.com/Norgate-AV/ccbuild/internal/staleness"
)

// note records a rebuild reason. With explain enabled the diff is logged.
func (t *Target) note(e Event, field string, diff func() string) {
	t.run.event(e)
	t.logger.Debug("target is stale", "reason", e.String(), "field", field)

	if !t.env.Explain() {
		return
	}

	text := ""
	if diff != nil {
		text = diff()
	}

	if text == "" {
		t.logger.Info("rebuild", "reason", e.String(), "field", field)
		return
	}

	t.logger.Info("rebuild", "reason", e.String(), "field", field, "diff", text)
}

func (t *Target) checkStrings(e Event, field string, prev, cur []string) bool {
	if !staleness.StringsChanged(prev, cur) {
		return false
	}

	t.note(e, field, func() string {
		return staleness.Explain(field, prev, cur)
	})

	return true
}

func (t *Target) checkOrdered(e Event, field string, prev, cur []string) bool {
	if !staleness.OrderedChanged(prev, cur) {
		return false
	}

	t.note(e, field, func() string {
		return staleness.Explain(field, prev, cur)
	})

	return true
}

func (t *Target) checkPaths(e Event, field string, prev, cur fingerprint.Set) bool {
	state := staleness.DiffPaths(prev, cur, t.env.Fingerprinter().Mode())
	if state == staleness.NoChange {
		return false
	}

	t.note(e, field+" "+state.String(), func() string {
		return staleness.ExplainPaths(field, prev, cur)
	})

	return true
}

func identityLines(id record.ToolchainIdentity) []string {
	return []string{
		"id=" + id.ID,
		"name=" + id.Name,
		"assembler=" + id.Assembler,
		"c_compiler=" + id.CCompiler,
		"cpp_compiler=" + id.CppCompiler,
		"archiver=" + id.Archiver,
		"linker=" + id.Linker,
	}
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		out = []string{}
	}

	sort.Strings(out)
	return out
}

func clone(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		out = []string{}
	}

	return out
}
