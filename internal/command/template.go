// Package command renders toolchain command templates and runs the
// resulting command lines.
//
// A template is plain text with named placeholders such as
// "{compiler} {compile_flags} -o {output} -c {input}". Every placeholder must
// be bound; substitution never leaves a placeholder behind. "{{" and "}}"
// stand for literal braces.
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingBinding is returned for a placeholder with no value
	ErrMissingBinding = errors.New("missing binding")

	// ErrInvalidBinding is returned for an empty or conflicting binding key
	ErrInvalidBinding = errors.New("invalid binding")

	// ErrMalformedTemplate is returned for unterminated or empty placeholders
	ErrMalformedTemplate = errors.New("malformed template")
)

// Construct substitutes every {name} placeholder in template and unescapes
// doubled braces
func Construct(template string, bindings map[string]string) (string, error) {
	for key := range bindings {
		if key == "" {
			return "", fmt.Errorf("%w: empty key", ErrInvalidBinding)
		}
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		if (c == '{' || c == '}') && i+1 < len(template) && template[i+1] == c {
			b.WriteByte(c)
			i += 2
			continue
		}

		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated placeholder at offset %d in %q", ErrMalformedTemplate, i, template)
		}

		key := template[i+1 : i+1+end]
		if key == "" {
			return "", fmt.Errorf("%w: empty placeholder at offset %d in %q", ErrMalformedTemplate, i, template)
		}

		value, ok := bindings[key]
		if !ok {
			return "", fmt.Errorf("%w: {%s} in %q", ErrMissingBinding, key, template)
		}

		b.WriteString(value)
		i += end + 2
	}

	return b.String(), nil
}

// Builder constructs commands against a set of default bindings
type Builder struct {
	defaults map[string]string
}

// NewBuilder creates a Builder with no defaults
func NewBuilder() *Builder {
	return &Builder{defaults: make(map[string]string)}
}

// AddDefault registers a binding available to every Construct call
func (b *Builder) AddDefault(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidBinding)
	}

	if _, ok := b.defaults[key]; ok {
		return fmt.Errorf("%w: {%s} already bound", ErrInvalidBinding, key)
	}

	b.defaults[key] = value
	return nil
}

// Default returns the default value bound to key
func (b *Builder) Default(key string) (string, bool) {
	v, ok := b.defaults[key]
	return v, ok
}

// Defaults returns the default keys in sorted order
func (b *Builder) Defaults() []string {
	keys := make([]string, 0, len(b.defaults))
	for k := range b.defaults {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Construct substitutes template with the defaults plus bindings. A binding
// may not shadow a default.
func (b *Builder) Construct(template string, bindings map[string]string) (string, error) {
	merged := make(map[string]string, len(b.defaults)+len(bindings))
	for k, v := range b.defaults {
		merged[k] = v
	}

	for k, v := range bindings {
		if _, ok := b.defaults[k]; ok {
			return "", fmt.Errorf("%w: {%s} shadows a default binding", ErrInvalidBinding, k)
		}

		merged[k] = v
	}

	return Construct(template, merged)
}

// Tidy collapses runs of blanks outside quotes and trims the result. Empty
// placeholders otherwise leave double spaces behind.
func Tidy(command string) string {
	var b strings.Builder
	b.Grow(len(command))

	var quote byte
	space := false

	for i := 0; i < len(command); i++ {
		c := command[i]

		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ' ' || c == '\t':
			space = true
			continue
		}

		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}

		space = false
		b.WriteByte(c)
	}

	return b.String()
}
