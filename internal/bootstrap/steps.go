package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/goose-ci/internal/gopath"
	"github.com/mmr-tortoise/goose-ci/internal/process"
	"github.com/mmr-tortoise/goose-ci/internal/vcs"
)

// Step names.
const (
	StepLogDir       = "log-dir"
	StepSharedRepo   = "shared-repo"
	StepDependencies = "dependencies"
)

// LogDirStep creates the directory the merge bot writes its logs to, since
// the bot does not create it itself.
//
// The step always succeeds: the directory may already exist or be
// impossible to create, and either way the run goes on.
type LogDirStep struct {
	// Dir is resolved against the home directory unless absolute. A
	// leading "~/" is accepted.
	Dir string

	// HomeDir returns the user's home directory. Defaults to
	// os.UserHomeDir.
	HomeDir func() (string, error)

	Logger *log.Logger
}

// Name implements Step.
func (s *LogDirStep) Name() string { return StepLogDir }

// Run implements Step.
func (s *LogDirStep) Run(_ context.Context) Result {
	path, err := s.path()
	if err != nil {
		s.Logger.Debug("Could not locate log directory", "dir", s.Dir, "err", err)
		return Result{OK: true, Message: "Log directory skipped", Err: err}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		s.Logger.Debug("Could not create log directory", "path", path, "err", err)
		return Result{OK: true, Message: "Log directory not created", Err: err}
	}
	return Result{OK: true, Message: "Log directory ready: " + path}
}

func (s *LogDirStep) path() (string, error) {
	dir := strings.TrimPrefix(s.Dir, "~/")
	if filepath.IsAbs(dir) {
		return dir, nil
	}

	homeDir := s.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dir), nil
}

// Sharer is the version-control surface used by SharedRepoStep.
// *vcs.Manager implements it.
type Sharer interface {
	Open(dir string) (*vcs.Checkout, error)
	InitShared(path string) (*vcs.SharedRepo, error)
	UseShared(ctx context.Context, c *vcs.Checkout, shared *vcs.SharedRepo) error
}

// SharedRepoStep moves the checkout under test onto a shared object store,
// so later branches checked out next to it do not fetch the whole history
// again.
//
// The shared store is a bare repository named RepoName inside the directory
// located by Marker, for example $WORKSPACE/src/launchpad.net/.shared.git.
type SharedRepoStep struct {
	// Dir is the directory the run was started from.
	Dir string

	// Marker locates the directory that hosts the shared store. The store
	// lives in the path up to and including the marker.
	Marker string

	// RepoName is the directory name of the shared store.
	RepoName string

	VCS    Sharer
	Logger *log.Logger
}

// Name implements Step.
func (s *SharedRepoStep) Name() string { return StepSharedRepo }

// Run implements Step.
func (s *SharedRepoStep) Run(ctx context.Context) Result {
	checkout, err := s.VCS.Open(s.Dir)
	if err != nil {
		return Result{Message: "Could not open local checkout", Err: err}
	}
	if checkout.Shared {
		return Result{OK: true, Message: "Checkout already uses a shared repository"}
	}

	prefix, err := gopath.Resolve(s.Dir, s.Marker)
	if err != nil {
		return Result{Message: fmt.Sprintf("Could not find %q to create a shared repo", s.Marker), Err: err}
	}

	shared, err := s.VCS.InitShared(filepath.Join(prefix, s.RepoName))
	if err != nil {
		return Result{Message: "Could not create shared repository", Err: err}
	}

	s.Logger.Info("Reconfiguring to use a shared repository", "path", shared.Path)
	if err := s.VCS.UseShared(ctx, checkout, shared); err != nil {
		return Result{Message: "Could not reconfigure checkout to use the shared repository", Err: err}
	}
	return Result{OK: true, Message: "Checkout uses shared repository " + shared.Path}
}

// DependencyStep refreshes the external dependency tree with the go tool.
//
// A failed refresh is only a warning: the packages already present in the
// workspace may be enough to build.
type DependencyStep struct {
	Command []string

	// Env is overlaid on the child environment, normally the resolved
	// search-path variable.
	Env map[string]string

	Runner process.Runner
}

// Name implements Step.
func (s *DependencyStep) Name() string { return StepDependencies }

// Run implements Step.
func (s *DependencyStep) Run(ctx context.Context) Result {
	cmd := process.Command{Args: s.Command, Env: s.Env}
	failed := "Failed to update " + dependencyTarget(s.Command)

	code, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return Result{Message: failed, Err: err}
	}
	if !code.IsSuccess() {
		return Result{Message: failed, Err: fmt.Errorf("%s exited with status %d", strings.Join(s.Command, " "), code)}
	}
	return Result{OK: true, Message: "Dependencies updated"}
}

// dependencyTarget names what a dependency command refreshes: its last
// argument without a trailing "/..." wildcard.
func dependencyTarget(args []string) string {
	if len(args) == 0 {
		return "dependencies"
	}
	return strings.TrimSuffix(args[len(args)-1], "/...")
}
