package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccbuild/internal/buildenv"
	"github.com/Norgate-AV/ccbuild/internal/command"
	"github.com/Norgate-AV/ccbuild/internal/config"
	"github.com/Norgate-AV/ccbuild/internal/generator"
	"github.com/Norgate-AV/ccbuild/internal/output"
	"github.com/Norgate-AV/ccbuild/internal/project"
	"github.com/Norgate-AV/ccbuild/internal/target"
	"github.com/Norgate-AV/ccbuild/internal/taskgraph"
)

var buildCmd = &cobra.Command{
	Use:          "build",
	Short:        "Build the project",
	Long:         `Build every target and generator declared in the project manifest.`,
	RunE:         runBuild,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

var errBuildFailed = errors.New("build failed")

// newExecutor creates the executor commands run through
var newExecutor = func() command.Executor {
	return command.NewShellExecutor()
}

// session is the configuration and project a command works on
type session struct {
	cfg     *config.Config
	env     *buildenv.Context
	project *project.Project
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(cmd)
	if err != nil {
		return nil, err
	}

	console.SetNoColor(cfg.NoColor)
	console.SetVerbose(cfg.Verbose)

	return cfg, nil
}

func setup(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level}))

	env, err := buildenv.New(cfg.ProjectRoot, cfg.BuildDir,
		buildenv.WithLogger(logger),
		buildenv.WithExecutor(newExecutor()),
		buildenv.WithFingerprintMode(cfg.Mode),
		buildenv.WithExplain(cfg.Explain))
	if err != nil {
		return nil, err
	}

	m, err := project.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	p, err := project.Load(env, m)
	if err != nil {
		return nil, err
	}

	console.Debug("project root: %s", cfg.ProjectRoot)
	console.Debug("build directory: %s", cfg.BuildDir)
	console.Debug("toolchain: %s, jobs: %d, fingerprint: %s", p.Toolchain().Name(), cfg.Jobs, cfg.Mode)

	return &session{cfg: cfg, env: env, project: p}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := setup(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := s.project.Build(ctx, s.cfg.Jobs)

	if res != nil {
		for _, e := range res.Errors {
			if e != err {
				console.Error("%v", e)
			}
		}

		console.Summary(summarize(s.project, time.Since(start)))
	}

	if err != nil {
		return err
	}

	if res.State != taskgraph.Success {
		return errBuildFailed
	}

	return nil
}

// summarize sorts the units of a finished build by outcome
func summarize(p *project.Project, elapsed time.Duration) output.Summary {
	s := output.Summary{Elapsed: elapsed}

	for _, g := range p.Generators() {
		switch g.State() {
		case generator.Done:
			if len(g.Report().Ran) > 0 {
				s.Rebuilt = append(s.Rebuilt, g.Name())
			} else {
				s.UpToDate = append(s.UpToDate, g.Name())
			}
		case generator.Failed:
			s.Failed = append(s.Failed, g.Name())
		default:
			s.Skipped = append(s.Skipped, g.Name())
		}
	}

	for _, t := range p.Targets() {
		switch t.State() {
		case target.Built:
			if t.Report().Rebuilt() {
				s.Rebuilt = append(s.Rebuilt, t.Name())
			} else {
				s.UpToDate = append(s.UpToDate, t.Name())
			}
		case target.Failed:
			s.Failed = append(s.Failed, t.Name())
		default:
			s.Skipped = append(s.Skipped, t.Name())
		}
	}

	return s
}
