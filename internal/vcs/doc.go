// Package vcs manages the shared git object store used by the CI bot.
//
// Every branch the bot tests is a separate checkout under one workspace
// directory. Instead of each checkout keeping a full copy of the history,
// they borrow objects from a single bare repository through git alternates:
//
//	$WORKSPACE/src/launchpad.net/.shared.git   bare repository, owns objects
//	$WORKSPACE/src/launchpad.net/goose         checkout, alternates -> above
//
// Manager.Open locates the checkout containing a directory, InitShared
// creates or reuses the bare repository, and UseShared moves a checkout's
// objects into it.
package vcs
