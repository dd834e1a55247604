// Package bootstrap prepares the workspace of the merge bot before a run.
//
// Preparation is a list of independent steps: the bot's log directory, the
// shared git object store, and a refresh of the external dependency tree.
// A step that fails only logs; it never stops the steps after it or the run.
package bootstrap
