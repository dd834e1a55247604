package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/process"
)

// suiteDir is the working directory lent to one live-test suite.
//
// The suite's command runs with Dir set to path; the goose-ci process
// itself stays in the directory it was started from. cwd records that
// directory so release can check nothing moved the process while the suite
// ran.
type suiteDir struct {
	suite model.SuiteName
	path  string
	cwd   string
}

// acquireSuiteDir checks that the suite directory exists below base and
// records the current process working directory.
func acquireSuiteDir(base string, suite model.SuiteName) (*suiteDir, error) {
	path := filepath.Join(base, suite.String())
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("suite directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("suite directory %s is not a directory", path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return &suiteDir{suite: suite, path: path, cwd: cwd}, nil
}

// release hands the directory back. If the process working directory is
// no longer the one recorded at acquire time, it is moved back and an
// error describing the change is returned.
func (d *suiteDir) release() error {
	cwd, err := os.Getwd()
	if err == nil && cwd == d.cwd {
		return nil
	}

	if chdirErr := os.Chdir(d.cwd); chdirErr != nil {
		return fmt.Errorf("failed to restore working directory %s after suite %s: %w", d.cwd, d.suite, chdirErr)
	}
	if err != nil {
		return fmt.Errorf("working directory lost while running suite %s: %w", d.suite, err)
	}
	return fmt.Errorf("working directory changed to %s while running suite %s", cwd, d.suite)
}

// withSuiteDir runs fn with the suite's directory and releases it when fn
// returns or panics. A release problem is logged as a warning; it does not
// change the suite's exit code.
func (o *Orchestrator) withSuiteDir(suite model.SuiteName, fn func(dir string) (model.ExitCode, error)) (model.ExitCode, error) {
	d, err := acquireSuiteDir(o.dir, suite)
	if err != nil {
		return model.ExitGeneralError, err
	}
	defer func() {
		if err := d.release(); err != nil {
			o.logger.Warn("Suite directory not released cleanly", "suite", suite, "err", err)
			return
		}
		o.logger.Debug("Released suite directory", "suite", suite, "dir", d.path)
	}()
	return fn(d.path)
}

// runLive runs every configured suite in order. A failing suite is logged
// and the next one still runs; the stage code combines the suite codes
// with the configured aggregation policy.
//
// Cancellation is checked before each suite. Once ctx is done no further
// suite starts, the stage code becomes ExitGeneralError and the suites
// that did run stay in the result.
func (o *Orchestrator) runLive(ctx context.Context, env map[string]string) model.StageResult {
	start := time.Now()
	policy := o.cfg.Aggregate()
	result := model.StageResult{Stage: model.StageLiveTest}

	for _, suite := range o.cfg.Suites() {
		if err := ctx.Err(); err != nil {
			result.Code = model.ExitGeneralError
			result.Error = err.Error()
			break
		}

		sr := o.runSuite(ctx, suite, env)
		result.Suites = append(result.Suites, sr)
		result.Code = aggregate(policy, result.Code, sr.Code)
	}

	result.Duration = time.Since(start)
	return result
}

// runSuite runs the live command for one suite inside its directory and
// records the outcome. A suite whose directory is missing is a failed
// suite with ExitGeneralError; nothing is started for it.
func (o *Orchestrator) runSuite(ctx context.Context, suite model.SuiteName, env map[string]string) model.SuiteResult {
	start := time.Now()
	code, err := o.withSuiteDir(suite, func(dir string) (model.ExitCode, error) {
		return o.runner.Run(ctx, process.Command{Args: o.cfg.Live.Command, Dir: dir, Env: env})
	})

	sr := model.SuiteResult{Suite: suite, Code: code, Duration: time.Since(start)}
	if err != nil {
		sr.Error = err.Error()
	}
	if sr.Failed() {
		o.logger.Error(fmt.Sprintf("FAIL: Running live tests in %s", suite), failureFields(code, err)...)
	}
	return sr
}

// aggregate folds the code of the suite that just ran into the stage code.
//
// With AggregateLast the stage reports the last suite's code, so a later
// success hides an earlier failure. With AggregateFirst the first failure
// sticks.
func aggregate(policy model.AggregatePolicy, current, next model.ExitCode) model.ExitCode {
	if policy == model.AggregateFirst && !current.IsSuccess() {
		return current
	}
	return next
}
