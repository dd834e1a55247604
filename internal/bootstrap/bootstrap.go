package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Step is one unit of workspace preparation.
type Step interface {
	// Name identifies the step in logs and summaries.
	Name() string

	// Run performs the step. Failures are reported in the Result, never by
	// panicking or aborting the caller.
	Run(ctx context.Context) Result
}

// Result is the outcome of a single step.
type Result struct {
	Step string

	// OK is false when the step could not do its work.
	OK bool

	// Message is a short human-readable note on what happened. It is the
	// log line written for the step.
	Message string

	// Err is the underlying failure, if any.
	Err error

	Duration time.Duration
}

// Summary collects the results of every step of a bootstrap run, in the
// order the steps were given.
type Summary struct {
	Results []Result
}

// Failed returns the results of the steps that did not succeed.
func (s Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}

// OK reports whether every step succeeded.
func (s Summary) OK() bool {
	return len(s.Failed()) == 0
}

// Run executes the steps in order and returns their results.
//
// Every step runs even when an earlier one fails or panics. Run stops early
// only when ctx is cancelled; the remaining steps are then recorded as not
// run.
func Run(ctx context.Context, logger *log.Logger, steps ...Step) Summary {
	var summary Summary

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			summary.Results = append(summary.Results, Result{
				Step:    step.Name(),
				Message: "Bootstrap step not run",
				Err:     err,
			})
			continue
		}

		start := time.Now()
		result := runStep(ctx, step)
		result.Step = step.Name()
		result.Duration = time.Since(start)
		summary.Results = append(summary.Results, result)

		if result.OK {
			logger.Debug(result.Message, "step", result.Step, "duration", result.Duration)
		} else {
			logger.Warn(result.Message, "step", result.Step, "err", result.Err)
		}
	}

	return summary
}

// runStep runs a single step, turning a panic into a failed result.
//
// The named result lets the deferred recover replace whatever the step
// would have returned.
func runStep(ctx context.Context, step Step) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Message: "Bootstrap step panicked", Err: fmt.Errorf("step %s panicked: %v", step.Name(), r)}
		}
	}()
	return step.Run(ctx)
}
