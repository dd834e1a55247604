// Package config provides the runner configuration.
//
// Every setting has a default matching the goose project layout, so a
// configuration file is optional. Values are layered in this order (later
// wins):
//
//  1. Built-in defaults
//  2. A YAML or JSONC file (--config, or .goose-ci.{yaml,yml,jsonc,json} in
//     the working directory)
//  3. GOOSECI_* environment variables
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/goose-ci/internal/gopath"
	"github.com/mmr-tortoise/goose-ci/internal/model"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runner configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace" yaml:"workspace"`
	Bootstrap BootstrapConfig `koanf:"bootstrap" yaml:"bootstrap"`
	Build     CommandConfig   `koanf:"build" yaml:"build"`
	Test      CommandConfig   `koanf:"test" yaml:"test"`
	Live      LiveConfig      `koanf:"live" yaml:"live"`
}

// WorkspaceConfig controls how the search-path variable is derived.
type WorkspaceConfig struct {
	// Marker is the path segment located in the working directory.
	Marker string `koanf:"marker" yaml:"marker"`

	// Variable is the search-path variable set for child processes.
	Variable string `koanf:"variable" yaml:"variable"`

	// IncludeMarker puts the path up to and including Marker on the
	// search path instead of the directory that contains it.
	IncludeMarker bool `koanf:"include_marker" yaml:"include_marker"`
}

// BootstrapConfig controls the bot workspace preparation.
type BootstrapConfig struct {
	// LogDir is created under the home directory unless absolute.
	LogDir string `koanf:"log_dir" yaml:"log_dir"`

	// SharedRepoMarker locates the directory that hosts the shared
	// object store.
	SharedRepoMarker string `koanf:"shared_repo_marker" yaml:"shared_repo_marker"`

	// SharedRepoName is the bare repository created in that directory.
	SharedRepoName string `koanf:"shared_repo_name" yaml:"shared_repo_name"`

	// DependencyCommand refreshes the external dependency tree.
	DependencyCommand []string `koanf:"dependency_command" yaml:"dependency_command"`
}

// CommandConfig holds a single command line.
type CommandConfig struct {
	Command []string `koanf:"command" yaml:"command"`
}

// LiveConfig controls the live-test suites.
type LiveConfig struct {
	Command   []string `koanf:"command" yaml:"command"`
	Suites    []string `koanf:"suites" yaml:"suites"`
	Aggregate string   `koanf:"aggregate" yaml:"aggregate"`
}

// Default values.
const (
	DefaultMarker           = "src/launchpad.net/goose"
	DefaultVariable         = gopath.DefaultVariable
	DefaultLogDir           = "logs"
	DefaultSharedRepoMarker = "src/launchpad.net/"
	DefaultSharedRepoName   = ".shared.git"
)

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every unset field with its default.
func applyDefaults(cfg *Config) {
	if cfg.Workspace.Marker == "" {
		cfg.Workspace.Marker = DefaultMarker
	}
	if cfg.Workspace.Variable == "" {
		cfg.Workspace.Variable = DefaultVariable
	}

	if cfg.Bootstrap.LogDir == "" {
		cfg.Bootstrap.LogDir = DefaultLogDir
	}
	if cfg.Bootstrap.SharedRepoMarker == "" {
		cfg.Bootstrap.SharedRepoMarker = DefaultSharedRepoMarker
	}
	if cfg.Bootstrap.SharedRepoName == "" {
		cfg.Bootstrap.SharedRepoName = DefaultSharedRepoName
	}
	if len(cfg.Bootstrap.DependencyCommand) == 0 {
		cfg.Bootstrap.DependencyCommand = []string{"go", "get", "-u", "launchpad.net/juju-core/..."}
	}

	if len(cfg.Build.Command) == 0 {
		cfg.Build.Command = []string{"go", "build"}
	}
	if len(cfg.Test.Command) == 0 {
		cfg.Test.Command = []string{"go", "test", "./..."}
	}

	if len(cfg.Live.Command) == 0 {
		cfg.Live.Command = []string{"go", "test", "-live", "-gocheck.v"}
	}
	if cfg.Live.Suites == nil {
		cfg.Live.Suites = make([]string, 0, len(model.KnownLiveSuites))
		for _, s := range model.KnownLiveSuites {
			cfg.Live.Suites = append(cfg.Live.Suites, s.String())
		}
	}
	if cfg.Live.Aggregate == "" {
		cfg.Live.Aggregate = model.AggregateLast.String()
	}
}

// Validate checks the configuration for values the runner cannot use.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Workspace.Marker) == "" {
		errs = append(errs, errors.New("workspace.marker must not be empty"))
	}
	if strings.TrimSpace(c.Workspace.Variable) == "" || strings.ContainsAny(c.Workspace.Variable, "= ") {
		errs = append(errs, fmt.Errorf("workspace.variable %q is not a valid variable name", c.Workspace.Variable))
	}

	if strings.TrimSpace(c.Bootstrap.LogDir) == "" {
		errs = append(errs, errors.New("bootstrap.log_dir must not be empty"))
	}
	if strings.TrimSpace(c.Bootstrap.SharedRepoMarker) == "" {
		errs = append(errs, errors.New("bootstrap.shared_repo_marker must not be empty"))
	}
	if name := c.Bootstrap.SharedRepoName; name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		errs = append(errs, fmt.Errorf("bootstrap.shared_repo_name %q must be a single directory name", name))
	}

	commands := []struct {
		key  string
		args []string
	}{
		{"bootstrap.dependency_command", c.Bootstrap.DependencyCommand},
		{"build.command", c.Build.Command},
		{"test.command", c.Test.Command},
		{"live.command", c.Live.Command},
	}
	for _, cmd := range commands {
		if len(cmd.args) == 0 || strings.TrimSpace(cmd.args[0]) == "" {
			errs = append(errs, fmt.Errorf("%s must name a program", cmd.key))
		}
	}

	if _, err := model.ParseSuiteNames(c.Live.Suites); err != nil {
		errs = append(errs, fmt.Errorf("live.suites: %w", err))
	}
	if _, err := model.ParseAggregatePolicy(c.Live.Aggregate); err != nil {
		errs = append(errs, fmt.Errorf("live.aggregate: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Suites returns the live-test suites in execution order.
// The configuration must have passed Validate.
func (c *Config) Suites() []model.SuiteName {
	suites, _ := model.ParseSuiteNames(c.Live.Suites)
	return suites
}

// Aggregate returns the live-test aggregation policy.
// The configuration must have passed Validate.
func (c *Config) Aggregate() model.AggregatePolicy {
	p, err := model.ParseAggregatePolicy(c.Live.Aggregate)
	if err != nil {
		return model.AggregateLast
	}
	return p
}
