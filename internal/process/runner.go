package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/goose-ci/internal/model"
)

// Command is one external invocation.
type Command struct {
	// Args is the program followed by its arguments. Must not be empty.
	Args []string

	// Dir overrides the working directory of the child. Empty means the
	// runner's own working directory.
	Dir string

	// Env holds variables set for the child on top of the inherited
	// environment.
	Env map[string]string
}

// String renders the command the way it is logged.
func (c Command) String() string {
	s := strings.Join(c.Args, " ")
	if c.Dir != "" {
		s += " in " + c.Dir
	}
	return s
}

// Runner executes external commands and reports their exit status.
type Runner interface {
	// Run blocks until the command exits. A command that ran returns its
	// exit status and a nil error, whatever the status. An error means
	// the command could not be started or waited on.
	Run(ctx context.Context, cmd Command) (model.ExitCode, error)
}

// ExecRunner runs commands as child processes with os/exec.
//
// Each command is logged at info level as "Running: <command>" before it
// starts. The child writes straight to the runner's stdout and stderr, so
// long test runs stream their output instead of buffering it.
type ExecRunner struct {
	logger *log.Logger

	// stdout and stderr receive the child's output streams. The CLI points
	// stdout at stderr when the report is printed as JSON.
	stdout io.Writer
	stderr io.Writer

	// environ returns the environment inherited by children.
	environ func() []string

	// commandContext builds the *exec.Cmd; replaced in tests.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithOutput connects child stdout and stderr to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *ExecRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnviron replaces the inherited base environment.
func WithEnviron(environ func() []string) Option {
	return func(r *ExecRunner) {
		r.environ = environ
	}
}

// NewExecRunner creates a runner that logs each command to logger before
// starting it.
//
// By default children inherit os.Stdout, os.Stderr and os.Environ; the
// options replace any of them.
func NewExecRunner(logger *log.Logger, opts ...Option) *ExecRunner {
	r := &ExecRunner{
		logger:         logger,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		environ:        os.Environ,
		commandContext: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Runner.
//
// The result depends on how the child ended:
//   - exited: its status and a nil error, including non-zero statuses
//   - killed because ctx was cancelled: model.ExitGeneralError and an
//     error wrapping ctx.Err()
//   - terminated by a signal: model.ExitGeneralError and the wait error
//   - never started (binary missing, bad directory):
//     model.ExitCommandNotFound and the start error
func (r *ExecRunner) Run(ctx context.Context, c Command) (model.ExitCode, error) {
	if len(c.Args) == 0 {
		return model.ExitGeneralError, errors.New("empty command")
	}

	r.logger.Info("Running: " + c.String())

	// #nosec G204 -- commands come from the runner configuration
	cmd := r.commandContext(ctx, c.Args[0], c.Args[1:]...)

	// The working directory and environment are set on the child only.
	// The runner's own process is never moved or modified.
	cmd.Dir = c.Dir
	cmd.Env = Environ(r.environ(), c.Env)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	err := cmd.Run()
	if err == nil {
		return model.ExitSuccess, nil
	}

	// CommandContext kills the child on cancellation. Report the
	// cancellation rather than the resulting signal.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.ExitGeneralError, fmt.Errorf("%s: %w", c.Args[0], ctxErr)
	}

	// An ExitError means the child ran. ExitCode is -1 when it did not
	// exit normally.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return model.ExitCode(code), nil
		}
		// Terminated by a signal.
		return model.ExitGeneralError, fmt.Errorf("%s: %w", c.Args[0], err)
	}

	// Anything else happened before the child existed, typically
	// exec.ErrNotFound for a binary missing from PATH.
	return model.ExitCommandNotFound, fmt.Errorf("failed to start %s: %w", c.Args[0], err)
}

// Environ overlays overrides onto a KEY=VALUE environment list.
//
// Entries of base whose key is overridden are replaced in place; overrides
// for keys not present in base are appended in sorted key order. base is
// not modified.
//
// For example, with base ["HOME=/root", "GOPATH=/old"] and overrides
// {"GOPATH": "/ws"} the result is ["HOME=/root", "GOPATH=/ws"].
func Environ(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))

	for _, entry := range base {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			out = append(out, entry)
			continue
		}
		if v, overridden := overrides[key]; overridden {
			if seen[key] {
				// Drop duplicate keys so the override is unambiguous.
				continue
			}
			seen[key] = true
			out = append(out, key+"="+v)
			continue
		}
		out = append(out, entry)
	}

	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		if !seen[key] {
			out = append(out, key+"="+overrides[key])
		}
	}
	return out
}
