// Package pipeline runs the stages of a CI run in order and reports the
// outcome.
//
// A run walks the states
//
//	Init → PathResolved → [Bootstrapped] → Built → Tested → [LiveTested] → Done
//
// The workspace path is resolved once and passed to every child process
// through process.Command.Env; the goose-ci process environment and working
// directory are never modified. A failing build or unit test ends the run.
// Bootstrap steps and live-test suites only log their failures, and the
// live-test stage combines suite results according to the configured
// aggregation policy.
package pipeline
