package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SuiteName is the name of a live-test suite. Each suite is a subdirectory
// of the project checkout that holds network-dependent tests.
type SuiteName string

// String returns the suite name as it appears on disk.
func (s SuiteName) String() string {
	return string(s)
}

// KnownLiveSuites is the default ordered list of live-test suites.
// Suites run in this order.
var KnownLiveSuites = []SuiteName{
	"client",
	"glance",
	"identity",
	"nova",
	"swift",
}

// ParseSuiteNames converts plain strings into suite names, rejecting empty
// entries and entries that are not a single path element.
func ParseSuiteNames(names []string) ([]SuiteName, error) {
	suites := make([]SuiteName, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("suite name must not be empty")
		}
		if n == "." || n == ".." || strings.ContainsAny(n, `/\`) {
			return nil, fmt.Errorf("invalid suite name %q: must be a single directory name", n)
		}
		suites = append(suites, SuiteName(n))
	}
	return suites, nil
}

// Options holds the parsed command-line options of one run.
// It is built once by the CLI layer and never modified afterwards.
type Options struct {
	// Verbose lowers the log level to debug.
	Verbose bool

	// Tarmac enables the bot workspace bootstrap before the build.
	Tarmac bool

	// Live enables the live-test suites after the unit tests.
	Live bool

	// JSON prints the run report as JSON on stdout.
	JSON bool

	// ConfigPath is an explicit configuration file. Empty means auto-detect.
	ConfigPath string
}

// AggregatePolicy decides how the live-test stage folds the exit codes of
// its suites into a single stage result.
type AggregatePolicy string

const (
	// AggregateLast reports the exit code of the last suite that ran.
	// A later passing suite clears an earlier failure.
	AggregateLast AggregatePolicy = "last"

	// AggregateFirst reports the first non-zero exit code, so any failing
	// suite fails the stage.
	AggregateFirst AggregatePolicy = "first"
)

// String returns the string representation of AggregatePolicy.
func (p AggregatePolicy) String() string {
	return string(p)
}

// IsValid checks whether the policy is one of the predefined values.
func (p AggregatePolicy) IsValid() bool {
	switch p {
	case AggregateLast, AggregateFirst:
		return true
	default:
		return false
	}
}

// ParseAggregatePolicy converts a string to an AggregatePolicy.
func ParseAggregatePolicy(s string) (AggregatePolicy, error) {
	p := AggregatePolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid aggregate policy: %q (valid: last, first)", s)
	}
	return p, nil
}

// State is a position in the run state machine:
//
//	Init → PathResolved → [Bootstrapped] → Built → Tested → [LiveTested] → Done
//
// Bootstrapped and LiveTested are only visited when the matching option is
// set. A failed build or unit test jumps straight to Done.
type State string

const (
	StateInit         State = "init"
	StatePathResolved State = "path-resolved"
	StateBootstrapped State = "bootstrapped"
	StateBuilt        State = "built"
	StateTested       State = "tested"
	StateLiveTested   State = "live-tested"
	StateDone         State = "done"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// StageName identifies one stage of a run.
type StageName string

const (
	StageBootstrap StageName = "bootstrap"
	StageBuild     StageName = "build"
	StageUnitTest  StageName = "test"
	StageLiveTest  StageName = "live"
)

// String returns the string representation of StageName.
func (s StageName) String() string {
	return string(s)
}

// SuiteResult is the outcome of one live-test suite.
type SuiteResult struct {
	Suite    SuiteName     `json:"suite"`
	Code     ExitCode      `json:"code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the suite did not pass.
func (r SuiteResult) Failed() bool {
	return !r.Code.IsSuccess()
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    StageName     `json:"stage"`
	Code     ExitCode      `json:"code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// Suites is only populated for the live-test stage.
	Suites []SuiteResult `json:"suites,omitempty"`
}

// Report summarises a complete run.
type Report struct {
	// Workspace is the value the search-path variable had for child
	// processes. Empty when the workspace could not be resolved and the
	// variable was unset.
	Workspace string `json:"workspace,omitempty"`

	// States lists every state visited, in order.
	States []State `json:"states"`

	Stages []StageResult `json:"stages"`

	// Code is the exit code of the run.
	Code ExitCode `json:"code"`
}

// Stage returns the result of the named stage and whether it ran.
func (r *Report) Stage(name StageName) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// ExitCode is a process exit status. Codes 0-255 come from child processes;
// the named constants below are used for failures of goose-ci itself.
type ExitCode int

const (
	// ExitSuccess indicates the run completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitUsage indicates malformed command-line arguments.
	ExitUsage ExitCode = 2

	// ExitCommandNotFound indicates a child process could not be started,
	// matching the shell convention for a missing command.
	ExitCommandNotFound ExitCode = 127
)

// IsSuccess returns true if the exit code indicates success.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// String returns the decimal representation of the exit code.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }

// CLIError is an error that carries the exit code the process should
// terminate with.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
