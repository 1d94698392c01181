package builderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "configuration with unit",
			err:      Config("app", "add source", ErrLocked),
			contains: []string{"configuration error", `"app"`, "add source", "lock violation"},
		},
		{
			name:     "execution carries command and stderr",
			err:      Exec("lib", "compile", "gcc -c a.c", []byte("a.c:1: error\n"), errors.New("exit status 1")),
			contains: []string{"toolchain execution error", "command: gcc -c a.c", "stderr: a.c:1: error"},
		},
		{
			name:     "serialization",
			err:      Serializationf("app", errors.New("disk full"), "store record %s", "app.bdb"),
			contains: []string{"serialization error", "store record app.bdb", "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, c := range tt.contains {
				assert.Contains(t, msg, c)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("build: %w", Config("app", "lock", ErrLocked))

	assert.True(t, IsKind(wrapped, Configuration))
	assert.False(t, IsKind(wrapped, ToolchainExecution))
	assert.True(t, errors.Is(wrapped, ErrLocked))
	assert.False(t, IsKind(errors.New("plain"), Configuration))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"configuration", Configf("a", "bad"), true},
		{"serialization", Serializationf("a", errors.New("x"), "store"), true},
		{"execution", Exec("a", "link", "ld", nil, errors.New("exit 1")), false},
		{"staleness", Stalenessf("a", errors.New("x"), "load"), false},
		{"plain", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
