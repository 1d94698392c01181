package target

import (
	"fmt"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
)

// FlagKind selects one of a target's flag sets
type FlagKind int

const (
	PreprocessorFlag FlagKind = iota
	CommonCompileFlag
	PchCompileFlag
	PchObjectFlag
	AsmCompileFlag
	CCompileFlag
	CppCompileFlag
	LinkFlag
)

func (k FlagKind) String() string {
	switch k {
	case PreprocessorFlag:
		return "preprocessor flags"
	case CommonCompileFlag:
		return "common compile flags"
	case PchCompileFlag:
		return "pch compile flags"
	case PchObjectFlag:
		return "pch object flags"
	case AsmCompileFlag:
		return "asm compile flags"
	case CCompileFlag:
		return "c compile flags"
	case CppCompileFlag:
		return "cpp compile flags"
	case LinkFlag:
		return "link flags"
	default:
		return fmt.Sprintf("flags(%d)", int(k))
	}
}

// FlagSet is the flag API shared by every target kind
type FlagSet interface {
	AddFlag(kind FlagKind, flag string) error
	Flags(kind FlagKind) []string
}

var _ FlagSet = (*Target)(nil)

// AddFlag adds flag to the set selected by kind
func (t *Target) AddFlag(kind FlagKind, flag string) error {
	if kind < PreprocessorFlag || kind > LinkFlag {
		return builderr.Configf(t.name, "unknown flag kind %d", int(kind))
	}

	return t.mutate("add "+kind.String(), func() error {
		if flag == "" {
			return builderr.Configf(t.name, "empty flag for %s", kind)
		}

		t.flags[kind] = appendUnique(t.flags[kind], flag)
		return nil
	})
}

// Flags returns a copy of the set selected by kind
func (t *Target) Flags(kind FlagKind) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.flags[kind]))
	copy(out, t.flags[kind])
	return out
}

func (t *Target) AddPreprocessorFlag(flag string) error {
	return t.AddFlag(PreprocessorFlag, flag)
}

func (t *Target) AddCommonCompileFlag(flag string) error {
	return t.AddFlag(CommonCompileFlag, flag)
}

func (t *Target) AddPchCompileFlag(flag string) error {
	return t.AddFlag(PchCompileFlag, flag)
}

func (t *Target) AddPchObjectFlag(flag string) error {
	return t.AddFlag(PchObjectFlag, flag)
}

func (t *Target) AddAsmCompileFlag(flag string) error {
	return t.AddFlag(AsmCompileFlag, flag)
}

func (t *Target) AddCCompileFlag(flag string) error {
	return t.AddFlag(CCompileFlag, flag)
}

func (t *Target) AddCppCompileFlag(flag string) error {
	return t.AddFlag(CppCompileFlag, flag)
}

func (t *Target) AddLinkFlag(flag string) error {
	return t.AddFlag(LinkFlag, flag)
}
