package target

// CompileCommand is one entry of a compilation database
type CompileCommand struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	Source    string `json:"file"`
	Output    string `json:"output"`
}

// CompileCommands returns the compile command of every source, sorted by
// source path. It is empty until Build has run.
func (t *Target) CompileCommands() []CompileCommand {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]CompileCommand, 0, len(t.sourceOrder))
	for _, src := range t.sourceOrder {
		obj := t.objects[src]
		out = append(out, CompileCommand{
			Directory: t.env.RootDir(),
			Command:   obj.command,
			Source:    obj.source,
			Output:    obj.output,
		})
	}

	return out
}

// LinkCommand returns the constructed link command
func (t *Target) LinkCommand() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.linkCommand
}

// PchCommand returns the constructed pch command, if the target has a pch
func (t *Target) PchCommand() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pch == nil {
		return "", false
	}

	return t.pch.command, true
}
