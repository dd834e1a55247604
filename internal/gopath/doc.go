// Package gopath derives the workspace search path from the directory the
// runner is started in.
//
// The runner is expected to start inside a checkout laid out the classic
// GOPATH way, e.g. $WORKSPACE/src/launchpad.net/goose/nova. Locate finds the
// marker segment in that path; Prepend merges the resulting workspace into
// an existing search-path value without duplicating it.
//
// The functions here never read or write the process environment. Callers
// pass the current value in and hand the result to the child processes they
// start.
package gopath
