package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/goose-ci/internal/bootstrap"
	"github.com/mmr-tortoise/goose-ci/internal/config"
	"github.com/mmr-tortoise/goose-ci/internal/gopath"
	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/process"
	"github.com/mmr-tortoise/goose-ci/internal/vcs"
)

// Orchestrator drives one CI run.
//
// It owns no state between runs: every call to Run resolves the workspace
// again, runs the selected stages in their fixed order and returns a fresh
// report. The collaborators that touch the outside world (the process
// runner, the environment lookup, the home directory and the git manager)
// are injected so tests can replace them.
type Orchestrator struct {
	// cfg holds the commands, suites and workspace layout of the run.
	cfg *config.Config

	// runner starts every child process: the dependency refresh, the build,
	// the unit tests and each live suite.
	runner process.Runner

	logger *log.Logger

	// dir is the directory the run was started from. Build and unit tests
	// run here and live suite directories are looked up below it.
	dir string

	// lookupEnv reads the inherited value of the search-path variable.
	lookupEnv func(key string) (string, bool)

	// homeDir locates the merge bot's log directory.
	homeDir func() (string, error)

	// sharer moves the checkout onto the shared object store during the
	// bootstrap stage.
	sharer bootstrap.Sharer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLookupEnv replaces os.LookupEnv for reading the current search-path
// value.
func WithLookupEnv(lookup func(key string) (string, bool)) Option {
	return func(o *Orchestrator) {
		o.lookupEnv = lookup
	}
}

// WithHomeDir replaces os.UserHomeDir for locating the bot log directory.
func WithHomeDir(homeDir func() (string, error)) Option {
	return func(o *Orchestrator) {
		o.homeDir = homeDir
	}
}

// WithSharer replaces the git manager used by the shared-repository step.
func WithSharer(s bootstrap.Sharer) Option {
	return func(o *Orchestrator) {
		o.sharer = s
	}
}

// New creates an Orchestrator for a run started in dir.
//
// cfg must have passed Validate. Without options the orchestrator reads the
// real process environment and home directory and shares objects through a
// vcs.Manager that runs the git binary from PATH.
func New(cfg *config.Config, runner process.Runner, logger *log.Logger, dir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		runner:    runner,
		logger:    logger,
		dir:       dir,
		lookupEnv: os.LookupEnv,
		homeDir:   os.UserHomeDir,
		sharer:    vcs.NewManager(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the stages selected by opts and returns the report. The
// report's Code is the exit code of the run.
//
// The stages always run in this order:
//  1. Workspace resolution. A missing marker is logged and the inherited
//     search path is used unchanged.
//  2. Bootstrap, only with opts.Tarmac. Its failures are logged and never
//     change the exit code.
//  3. Build. A non-zero status ends the run with that status.
//  4. Unit tests. A non-zero status ends the run with that status.
//  5. Live suites, only with opts.Live. The stage code, folded with the
//     configured aggregation policy, becomes the exit code.
//
// report.States records every state the run passed through and always
// ends with model.StateDone.
func (o *Orchestrator) Run(ctx context.Context, opts model.Options) *model.Report {
	report := &model.Report{States: []model.State{model.StateInit}}
	done := func() *model.Report {
		report.States = append(report.States, model.StateDone)
		return report
	}

	// Step 1: compute the search path once; every child process gets the
	// same overlay.
	env := o.resolveWorkspace(report)
	report.States = append(report.States, model.StatePathResolved)

	// Step 2: prepare the bot workspace. The stage result is kept for the
	// report only.
	if opts.Tarmac {
		report.Stages = append(report.Stages, o.runBootstrap(ctx, env))
		report.States = append(report.States, model.StateBootstrapped)
	}

	// Step 3: build. The first failing stage decides the exit code.
	build := o.runCommand(ctx, model.StageBuild, o.cfg.Build.Command, env)
	report.Stages = append(report.Stages, build)
	if !build.Code.IsSuccess() {
		report.Code = build.Code
		return done()
	}
	report.States = append(report.States, model.StateBuilt)

	// Step 4: unit tests.
	test := o.runCommand(ctx, model.StageUnitTest, o.cfg.Test.Command, env)
	report.Stages = append(report.Stages, test)
	if !test.Code.IsSuccess() {
		report.Code = test.Code
		return done()
	}
	report.States = append(report.States, model.StateTested)

	// Step 5: live suites. Their aggregated code replaces the zero left by
	// the unit tests.
	if opts.Live {
		live := o.runLive(ctx, env)
		report.Stages = append(report.Stages, live)
		report.Code = live.Code
		report.States = append(report.States, model.StateLiveTested)
	}

	return done()
}

// resolveWorkspace computes the search-path value for child processes and
// returns it as an environment overlay.
//
// The marker is located in the start directory. By default the directory
// before the marker goes on the search path, since that is the directory
// the go tool expects to contain src/. With workspace.include_marker the
// prefix through the marker is used instead.
//
// A directory outside the workspace layout is not fatal: the inherited
// value is left alone and nil is returned, so children inherit the
// variable untouched. report.Workspace is set to the value children see
// in both cases.
func (o *Orchestrator) resolveWorkspace(report *model.Report) map[string]string {
	variable := o.cfg.Workspace.Variable
	existing, _ := o.lookupEnv(variable)
	report.Workspace = existing

	// The process environment is never written; the value reaches children
	// only through the returned overlay.
	match, err := gopath.Locate(o.dir, o.cfg.Workspace.Marker)
	if err != nil {
		o.logger.Warn(fmt.Sprintf("Unable to automatically set %s", variable), "dir", o.dir, "err", err)
		return nil
	}

	prefix := match.Root
	if o.cfg.Workspace.IncludeMarker {
		prefix = match.Through
	}

	// Prepend is a no-op when the prefix is already on the search path, so a
	// bot that exported it itself sees no change.
	value, changed := gopath.Prepend(prefix, existing)
	if changed {
		o.logger.Info(fmt.Sprintf("Setting %s to: %s", variable, value))
	} else {
		o.logger.Debug(fmt.Sprintf("%s already contains the workspace", variable), "value", value)
	}
	report.Workspace = value
	return map[string]string{variable: value}
}

// runBootstrap prepares the bot workspace.
//
// The steps run in order: the bot log directory, the shared object store
// and the dependency refresh. Each one logs its own outcome. The returned
// stage always has a zero code; when steps failed, their names are listed
// in the stage's Error so the report shows them.
func (o *Orchestrator) runBootstrap(ctx context.Context, env map[string]string) model.StageResult {
	start := time.Now()
	summary := bootstrap.Run(ctx, o.logger, o.bootstrapSteps(env)...)

	result := model.StageResult{Stage: model.StageBootstrap, Duration: time.Since(start)}
	if summary.OK() {
		o.logger.Debug("Bootstrap complete", "steps", len(summary.Results), "duration", result.Duration)
		return result
	}

	// The stage code stays zero; the failed step names are only recorded
	// for the report.
	failed := summary.Failed()
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Step)
	}
	result.Error = "steps failed: " + strings.Join(names, ", ")
	return result
}

// bootstrapSteps builds the bootstrap steps from the configuration. env is
// the search-path overlay, passed to the dependency refresh so the go tool
// updates the same workspace the build uses.
func (o *Orchestrator) bootstrapSteps(env map[string]string) []bootstrap.Step {
	b := o.cfg.Bootstrap
	return []bootstrap.Step{
		&bootstrap.LogDirStep{Dir: b.LogDir, HomeDir: o.homeDir, Logger: o.logger},
		&bootstrap.SharedRepoStep{
			Dir:      o.dir,
			Marker:   b.SharedRepoMarker,
			RepoName: b.SharedRepoName,
			VCS:      o.sharer,
			Logger:   o.logger,
		},
		&bootstrap.DependencyStep{Command: b.DependencyCommand, Env: env, Runner: o.runner},
	}
}

// runCommand runs a stage made of a single command in the start directory.
//
// The child's exit status becomes the stage code. A command that could not
// start is reported with the runner's code (127 for a missing binary) and
// its error is kept in the stage for the report. Any non-zero status is
// logged as "FAIL: failed running <command>".
func (o *Orchestrator) runCommand(ctx context.Context, stage model.StageName, args []string, env map[string]string) model.StageResult {
	start := time.Now()
	code, err := o.runner.Run(ctx, process.Command{Args: args, Env: env})

	result := model.StageResult{Stage: stage, Code: code, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
	}
	if !code.IsSuccess() {
		o.logger.Error("FAIL: failed running "+strings.Join(args, " "), failureFields(code, err)...)
	}
	return result
}

// failureFields returns the key/value pairs logged with a failed command:
// the exit code, plus the start error when there is one.
func failureFields(code model.ExitCode, err error) []interface{} {
	fields := []interface{}{"code", code}
	if err != nil {
		fields = append(fields, "err", err)
	}
	return fields
}
