// Package buildenv holds the per-run build context.
//
// A Context is created once per invocation and handed to every target and
// generator. It is immutable, so several contexts may coexist in one
// process, for example in tests.
package buildenv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

// Context carries project paths and shared services
type Context struct {
	rootDir       string
	buildDir      string
	runID         string
	explain       bool
	logger        *slog.Logger
	executor      command.Executor
	fingerprinter *fingerprint.Fingerprinter
}

type options struct {
	logger    *slog.Logger
	executor  command.Executor
	mode      fingerprint.Mode
	cacheSize int
	explain   bool
}

// Option configures a Context
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithExecutor sets the process executor. The default runs commands
// through the platform shell.
func WithExecutor(e command.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithFingerprintMode selects content hashing or timestamps
func WithFingerprintMode(mode fingerprint.Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithHashCacheSize sets the number of memoised file hashes
func WithHashCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithExplain enables logging of the differences that make a unit dirty
func WithExplain(explain bool) Option {
	return func(o *options) {
		o.explain = explain
	}
}

// New creates a Context. Both directories are made absolute and the build
// directory is created.
func New(rootDir, buildDir string, opts ...Option) (*Context, error) {
	o := options{mode: fingerprint.ModeHash}
	for _, opt := range opts {
		opt(&o)
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	build, err := filepath.Abs(buildDir)
	if err != nil {
		return nil, fmt.Errorf("invalid build directory: %w", err)
	}

	if err := os.MkdirAll(build, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}

	fp, err := fingerprint.New(o.mode, o.cacheSize)
	if err != nil {
		return nil, err
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.executor == nil {
		o.executor = command.NewShellExecutor()
	}

	runID := uuid.NewString()

	return &Context{
		rootDir:       root,
		buildDir:      build,
		runID:         runID,
		explain:       o.explain,
		logger:        o.logger.With("run", runID),
		executor:      o.executor,
		fingerprinter: fp,
	}, nil
}

// RootDir returns the absolute project root
func (c *Context) RootDir() string {
	return c.rootDir
}

// BuildDir returns the absolute build output root
func (c *Context) BuildDir() string {
	return c.buildDir
}

// RunID identifies this invocation in logs
func (c *Context) RunID() string {
	return c.runID
}

// Explain reports whether dirty checks log their differences
func (c *Context) Explain() bool {
	return c.explain
}

// Logger returns the run logger
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Executor returns the process executor
func (c *Context) Executor() command.Executor {
	return c.executor
}

// Fingerprinter returns the shared fingerprinter
func (c *Context) Fingerprinter() *fingerprint.Fingerprinter {
	return c.fingerprinter
}

// Resolve makes path absolute relative to the project root
func (c *Context) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(c.rootDir, path)
}
