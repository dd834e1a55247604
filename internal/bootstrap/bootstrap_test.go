package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/goose-ci/internal/gopath"
	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/process/processtest"
	"github.com/mmr-tortoise/goose-ci/internal/vcs"
)

const goGetJujuCore = "go get -u launchpad.net/juju-core/..."

func newTestLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel}), &buf
}

// funcStep adapts a function to Step.
type funcStep struct {
	name string
	run  func(ctx context.Context) Result
}

func (s funcStep) Name() string                   { return s.name }
func (s funcStep) Run(ctx context.Context) Result { return s.run(ctx) }

// fakeSharer records calls made by SharedRepoStep.
type fakeSharer struct {
	checkout *vcs.Checkout
	openErr  error
	initErr  error
	useErr   error

	initPath string
	used     bool
}

func (f *fakeSharer) Open(dir string) (*vcs.Checkout, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.checkout, nil
}

func (f *fakeSharer) InitShared(path string) (*vcs.SharedRepo, error) {
	f.initPath = path
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &vcs.SharedRepo{Path: path}, nil
}

func (f *fakeSharer) UseShared(_ context.Context, c *vcs.Checkout, _ *vcs.SharedRepo) error {
	f.used = true
	if f.useErr != nil {
		return f.useErr
	}
	c.Shared = true
	return nil
}

// TestRun_ContinuesAfterFailures verifies that a failing or panicking step
// does not stop the steps after it.
func TestRun_ContinuesAfterFailures(t *testing.T) {
	logger, logs := newTestLogger()
	var ran []string

	steps := []Step{
		funcStep{"fails", func(context.Context) Result {
			ran = append(ran, "fails")
			return Result{Message: "Could not do it", Err: errors.New("boom")}
		}},
		funcStep{"panics", func(context.Context) Result {
			ran = append(ran, "panics")
			panic("unexpected")
		}},
		funcStep{"works", func(context.Context) Result {
			ran = append(ran, "works")
			return Result{OK: true, Message: "Done"}
		}},
	}

	summary := Run(context.Background(), logger, steps...)

	assert.Equal(t, []string{"fails", "panics", "works"}, ran)
	require.Len(t, summary.Results, 3)
	assert.False(t, summary.OK())

	failed := summary.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "fails", failed[0].Step)
	assert.Equal(t, "panics", failed[1].Step)
	assert.Contains(t, failed[1].Err.Error(), "unexpected")

	assert.True(t, summary.Results[2].OK)
	assert.Contains(t, logs.String(), "Could not do it")
	assert.Contains(t, logs.String(), "step=works")
}

func TestRun_Cancelled(t *testing.T) {
	logger, _ := newTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	summary := Run(ctx, logger, funcStep{"never", func(context.Context) Result {
		called = true
		return Result{OK: true}
	}})

	assert.False(t, called)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].OK)
	assert.ErrorIs(t, summary.Results[0].Err, context.Canceled)
}

func TestLogDirStep(t *testing.T) {
	home := t.TempDir()
	logger, _ := newTestLogger()

	for _, dir := range []string{"logs", "~/logs"} {
		t.Run(dir, func(t *testing.T) {
			step := &LogDirStep{Dir: dir, HomeDir: func() (string, error) { return home, nil }, Logger: logger}

			res := step.Run(context.Background())
			assert.True(t, res.OK)
			assert.NoError(t, res.Err)
			assert.DirExists(t, filepath.Join(home, "logs"))

			// Running again on an existing directory is fine.
			assert.True(t, step.Run(context.Background()).OK)
		})
	}
}

func TestLogDirStep_AbsolutePath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "var", "log", "tarmac")
	logger, _ := newTestLogger()

	step := &LogDirStep{
		Dir:     dir,
		HomeDir: func() (string, error) { return "", errors.New("should not be called") },
		Logger:  logger,
	}

	res := step.Run(context.Background())
	assert.True(t, res.OK)
	assert.DirExists(t, dir)
}

// TestLogDirStep_Unwritable verifies that a directory that cannot be
// created is reported but does not fail the step.
func TestLogDirStep_Unwritable(t *testing.T) {
	// A regular file where the home directory should be makes MkdirAll
	// fail regardless of the user's privileges.
	home := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.WriteFile(home, nil, 0o600))
	logger, logs := newTestLogger()

	step := &LogDirStep{Dir: "logs", HomeDir: func() (string, error) { return home, nil }, Logger: logger}

	res := step.Run(context.Background())
	assert.True(t, res.OK)
	assert.Error(t, res.Err)
	assert.Contains(t, logs.String(), "Could not create log directory")
}

func TestLogDirStep_NoHome(t *testing.T) {
	logger, _ := newTestLogger()
	step := &LogDirStep{Dir: "logs", HomeDir: func() (string, error) { return "", errors.New("no home") }, Logger: logger}

	res := step.Run(context.Background())
	assert.True(t, res.OK)
	assert.ErrorContains(t, res.Err, "no home")
}

func TestSharedRepoStep(t *testing.T) {
	const cwd = "/srv/ws/src/launchpad.net/goose/nova"
	checkout := func() *vcs.Checkout {
		return &vcs.Checkout{Root: "/srv/ws/src/launchpad.net/goose"}
	}

	tests := []struct {
		name     string
		dir      string
		sharer   *fakeSharer
		wantOK   bool
		wantMsg  string
		wantInit string
		wantUsed bool
		wantErr  error
	}{
		{
			name:     "moves checkout onto shared store",
			dir:      cwd,
			sharer:   &fakeSharer{checkout: checkout()},
			wantOK:   true,
			wantMsg:  "Checkout uses shared repository",
			wantInit: "/srv/ws/src/launchpad.net/.shared.git",
			wantUsed: true,
		},
		{
			name:    "no checkout",
			dir:     cwd,
			sharer:  &fakeSharer{openErr: vcs.ErrNotCheckout},
			wantMsg: "Could not open local checkout",
			wantErr: vcs.ErrNotCheckout,
		},
		{
			name:    "already shared",
			dir:     cwd,
			sharer:  &fakeSharer{checkout: &vcs.Checkout{Root: checkout().Root, Shared: true}},
			wantOK:  true,
			wantMsg: "already uses a shared repository",
		},
		{
			name:    "marker missing",
			dir:     "/home/bot/goose",
			sharer:  &fakeSharer{checkout: checkout()},
			wantMsg: `Could not find "src/launchpad.net/"`,
			wantErr: gopath.ErrMarkerNotFound,
		},
		{
			name:     "init fails",
			dir:      cwd,
			sharer:   &fakeSharer{checkout: checkout(), initErr: vcs.ErrNotShared},
			wantMsg:  "Could not create shared repository",
			wantInit: "/srv/ws/src/launchpad.net/.shared.git",
			wantErr:  vcs.ErrNotShared,
		},
		{
			name:     "reconfigure fails",
			dir:      cwd,
			sharer:   &fakeSharer{checkout: checkout(), useErr: errors.New("git fetch failed")},
			wantMsg:  "Could not reconfigure checkout",
			wantInit: "/srv/ws/src/launchpad.net/.shared.git",
			wantUsed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := newTestLogger()
			step := &SharedRepoStep{
				Dir:      filepath.FromSlash(tt.dir),
				Marker:   "src/launchpad.net/",
				RepoName: ".shared.git",
				VCS:      tt.sharer,
				Logger:   logger,
			}

			res := step.Run(context.Background())
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Contains(t, res.Message, tt.wantMsg)
			assert.Equal(t, filepath.FromSlash(tt.wantInit), tt.sharer.initPath)
			assert.Equal(t, tt.wantUsed, tt.sharer.used)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
		})
	}
}

// TestSharedRepoStep_RepoName verifies that the configured store name picks
// the store path while the step keeps its own name in summaries.
func TestSharedRepoStep_RepoName(t *testing.T) {
	logger, _ := newTestLogger()
	sharer := &fakeSharer{checkout: &vcs.Checkout{Root: "/srv/ws/src/launchpad.net/goose"}}

	var step Step = &SharedRepoStep{
		Dir:      filepath.FromSlash("/srv/ws/src/launchpad.net/goose"),
		Marker:   "src/launchpad.net/",
		RepoName: "objects.git",
		VCS:      sharer,
		Logger:   logger,
	}
	assert.Equal(t, StepSharedRepo, step.Name())

	summary := Run(context.Background(), logger, step)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, StepSharedRepo, summary.Results[0].Step)
	assert.True(t, summary.OK())
	assert.Equal(t, filepath.FromSlash("/srv/ws/src/launchpad.net/objects.git"), sharer.initPath)
}

func TestDependencyStep(t *testing.T) {
	env := map[string]string{"GOPATH": "/srv/ws"}

	tests := []struct {
		name    string
		runner  *processtest.FakeRunner
		wantOK  bool
		wantMsg string
	}{
		{
			name:    "updated",
			runner:  &processtest.FakeRunner{},
			wantOK:  true,
			wantMsg: "Dependencies updated",
		},
		{
			name:    "non-zero status",
			runner:  &processtest.FakeRunner{Codes: map[string]model.ExitCode{goGetJujuCore: 1}},
			wantMsg: "Failed to update launchpad.net/juju-core",
		},
		{
			name:    "go missing",
			runner:  &processtest.FakeRunner{Errs: map[string]error{goGetJujuCore: errors.New("executable file not found")}},
			wantMsg: "Failed to update launchpad.net/juju-core",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &DependencyStep{
				Command: []string{"go", "get", "-u", "launchpad.net/juju-core/..."},
				Env:     env,
				Runner:  tt.runner,
			}

			res := step.Run(context.Background())
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantMsg, res.Message)

			calls := tt.runner.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, env, calls[0].Env)
			assert.Empty(t, calls[0].Dir)
		})
	}
}

func TestDependencyTarget(t *testing.T) {
	assert.Equal(t, "launchpad.net/juju-core", dependencyTarget([]string{"go", "get", "-u", "launchpad.net/juju-core/..."}))
	assert.Equal(t, "./tools", dependencyTarget([]string{"make", "./tools"}))
	assert.Equal(t, "dependencies", dependencyTarget(nil))
}

// TestRun_UnwritableLogDirDoesNotStopLaterSteps covers a bot workspace
// whose log directory cannot be created: the remaining steps still run and
// the summary does not count the log directory as failed.
func TestRun_UnwritableLogDirDoesNotStopLaterSteps(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.WriteFile(home, nil, 0o600))
	logger, logs := newTestLogger()

	sharer := &fakeSharer{checkout: &vcs.Checkout{Root: "/srv/ws/src/launchpad.net/goose", Shared: true}}
	runner := &processtest.FakeRunner{Codes: map[string]model.ExitCode{goGetJujuCore: 1}}

	summary := Run(context.Background(), logger,
		&LogDirStep{Dir: "logs", HomeDir: func() (string, error) { return home, nil }, Logger: logger},
		&SharedRepoStep{Dir: "/srv/ws/src/launchpad.net/goose", Marker: "src/launchpad.net/", RepoName: ".shared.git", VCS: sharer, Logger: logger},
		&DependencyStep{Command: []string{"go", "get", "-u", "launchpad.net/juju-core/..."}, Runner: runner},
	)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, []string{StepLogDir, StepSharedRepo, StepDependencies},
		[]string{summary.Results[0].Step, summary.Results[1].Step, summary.Results[2].Step})
	assert.True(t, summary.Results[0].OK)
	assert.True(t, summary.Results[1].OK)
	assert.False(t, summary.Results[2].OK)

	assert.Equal(t, []string{goGetJujuCore}, runner.Keys())
	assert.Contains(t, logs.String(), "WARN")
	assert.Contains(t, logs.String(), "Failed to update launchpad.net/juju-core")
}
