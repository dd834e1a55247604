// Package model defines the domain types and value objects for the
// goose-ci runner.
//
// This package contains pure data structures with no external dependencies.
// Options, suite names, stage results and the run report are transient
// values that exist for a single run.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
