// Package process runs the external build, test and dependency tools.
//
// Each command runs synchronously as a child process. The runner logs the
// command line before starting it and returns the child's exit status
// without interpreting it; deciding whether a status is fatal is up to the
// caller.
//
// Environment variables computed by the runner (the workspace search path)
// are never set on the goose-ci process. Environ overlays them onto the
// inherited environment of each child instead.
package process
