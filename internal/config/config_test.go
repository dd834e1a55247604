package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/goose-ci/internal/model"
)

// writeFile creates a file in dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefault verifies that the built-in configuration reproduces the
// goose CI commands and is valid.
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "src/launchpad.net/goose", cfg.Workspace.Marker)
	assert.Equal(t, "GOPATH", cfg.Workspace.Variable)
	assert.False(t, cfg.Workspace.IncludeMarker)
	assert.Equal(t, "logs", cfg.Bootstrap.LogDir)
	assert.Equal(t, "src/launchpad.net/", cfg.Bootstrap.SharedRepoMarker)
	assert.Equal(t, []string{"go", "get", "-u", "launchpad.net/juju-core/..."}, cfg.Bootstrap.DependencyCommand)
	assert.Equal(t, []string{"go", "build"}, cfg.Build.Command)
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.Test.Command)
	assert.Equal(t, []string{"go", "test", "-live", "-gocheck.v"}, cfg.Live.Command)
	assert.Equal(t, model.KnownLiveSuites, cfg.Suites())
	assert.Equal(t, model.AggregateLast, cfg.Aggregate())
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, path, err := Load("", dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", `
workspace:
  include_marker: true
build:
  command: [make, build]
live:
  suites: [nova, swift]
  aggregate: first
`)

	cfg, path, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".goose-ci.yaml"), path)

	assert.True(t, cfg.Workspace.IncludeMarker)
	assert.Equal(t, []string{"make", "build"}, cfg.Build.Command)
	assert.Equal(t, []model.SuiteName{"nova", "swift"}, cfg.Suites())
	assert.Equal(t, model.AggregateFirst, cfg.Aggregate())

	// Untouched sections keep their defaults.
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.Test.Command)
	assert.Equal(t, DefaultMarker, cfg.Workspace.Marker)
}

// TestLoad_JSONC verifies that comments and trailing commas are accepted.
func TestLoad_JSONC(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.jsonc", `{
  // the bot keeps its logs elsewhere
  "bootstrap": {
    "log_dir": "/var/log/tarmac",
    "shared_repo_name": "objects.git",
  },
  /* run only one suite */
  "live": {"suites": ["identity"]},
}`)

	cfg, _, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/tarmac", cfg.Bootstrap.LogDir)
	assert.Equal(t, "objects.git", cfg.Bootstrap.SharedRepoName)
	assert.Equal(t, []model.SuiteName{"identity"}, cfg.Suites())
}

// TestLoad_FilePreference verifies the lookup order of FileNames.
func TestLoad_FilePreference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.json", `{"live": {"aggregate": "first"}}`)
	writeFile(t, dir, ".goose-ci.yml", "live:\n  aggregate: last\n")

	cfg, path, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".goose-ci.yml"), path)
	assert.Equal(t, model.AggregateLast, cfg.Aggregate())
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ci.yaml", "test:\n  command: [go, test, -race, ./...]\n")

	cfg, loaded, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, []string{"go", "test", "-race", "./..."}, cfg.Test.Command)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ci.toml", "x = 1\n")

	_, _, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file type")
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", "live: [unclosed\n")

	_, _, err := Load("", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_EmptyYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", "")

	cfg, _, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoad_EnvOverrides verifies GOOSECI_* variables win over the file.
func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", "live:\n  aggregate: last\n")

	t.Setenv("GOOSECI_LIVE_AGGREGATE", "first")
	t.Setenv("GOOSECI_LIVE_SUITES", "client  nova")
	t.Setenv("GOOSECI_BOOTSTRAP_LOG_DIR", "ci-logs")
	t.Setenv("GOOSECI_BOOTSTRAP_DEPENDENCY_COMMAND", "go get -u example.com/dep/...")
	t.Setenv("GOOSECI_WORKSPACE_INCLUDE_MARKER", "true")

	cfg, _, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, model.AggregateFirst, cfg.Aggregate())
	assert.Equal(t, []model.SuiteName{"client", "nova"}, cfg.Suites())
	assert.Equal(t, "ci-logs", cfg.Bootstrap.LogDir)
	assert.Equal(t, []string{"go", "get", "-u", "example.com/dep/..."}, cfg.Bootstrap.DependencyCommand)
	assert.True(t, cfg.Workspace.IncludeMarker)
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", `
live:
  aggregate: sometimes
  suites: ["../escape"]
`)

	_, _, err := Load("", dir)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "live.aggregate")
	assert.Contains(t, err.Error(), "live.suites")
}

// TestValidate covers each rule of Config.Validate in isolation.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty marker", func(c *Config) { c.Workspace.Marker = " " }, "workspace.marker"},
		{"bad variable", func(c *Config) { c.Workspace.Variable = "GO PATH" }, "workspace.variable"},
		{"empty log dir", func(c *Config) { c.Bootstrap.LogDir = "" }, "bootstrap.log_dir"},
		{"empty shared marker", func(c *Config) { c.Bootstrap.SharedRepoMarker = "" }, "bootstrap.shared_repo_marker"},
		{"nested shared name", func(c *Config) { c.Bootstrap.SharedRepoName = "a/b" }, "bootstrap.shared_repo_name"},
		{"empty build", func(c *Config) { c.Build.Command = nil }, "build.command"},
		{"blank test program", func(c *Config) { c.Test.Command = []string{""} }, "test.command"},
		{"empty live", func(c *Config) { c.Live.Command = []string{} }, "live.command"},
		{"empty dependency", func(c *Config) { c.Bootstrap.DependencyCommand = nil }, "bootstrap.dependency_command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestMarshal verifies the YAML rendering used by the config command.
func TestMarshal(t *testing.T) {
	out, err := Marshal(Default())
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "marker: src/launchpad.net/goose")
	assert.Contains(t, s, "aggregate: last")
	assert.Contains(t, s, "- swift")

	// The rendering loads back to the same configuration.
	dir := t.TempDir()
	writeFile(t, dir, ".goose-ci.yaml", s)
	cfg, _, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
