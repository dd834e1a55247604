// Package processtest provides a Runner double for tests that must not
// start real processes.
package processtest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/process"
)

// FakeRunner records every command and answers with canned exit codes.
type FakeRunner struct {
	// Codes maps a command Key to the exit code it returns. Commands not
	// listed succeed.
	Codes map[string]model.ExitCode

	// Errs maps a command Key to a start error. It takes precedence over
	// Codes and is returned with model.ExitCommandNotFound.
	Errs map[string]error

	// OnRun, when set, is called with each command before it is answered.
	OnRun func(c process.Command)

	mu    sync.Mutex
	calls []process.Command
}

// Key identifies a command in Codes and Errs: the arguments joined by
// spaces, followed by " in <base of Dir>" when Dir is set.
func Key(c process.Command) string {
	k := strings.Join(c.Args, " ")
	if c.Dir != "" {
		k += " in " + filepath.Base(c.Dir)
	}
	return k
}

// Run implements process.Runner.
func (f *FakeRunner) Run(ctx context.Context, c process.Command) (model.ExitCode, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.OnRun != nil {
		f.OnRun(c)
	}
	if err := ctx.Err(); err != nil {
		return model.ExitGeneralError, err
	}

	key := Key(c)
	if err, ok := f.Errs[key]; ok {
		return model.ExitCommandNotFound, err
	}
	return f.Codes[key], nil
}

// Calls returns the commands run so far.
func (f *FakeRunner) Calls() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Command(nil), f.calls...)
}

// Keys returns the Key of every command run so far, in order.
func (f *FakeRunner) Keys() []string {
	calls := f.Calls()
	keys := make([]string, 0, len(calls))
	for _, c := range calls {
		keys = append(keys, Key(c))
	}
	return keys
}
