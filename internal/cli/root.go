// Package cli implements the cobra-based command line of goose-ci.
//
// The root command runs the CI pipeline itself; the "config" subcommand
// prints the effective configuration. This file defines the root command,
// its global flags and the mapping of errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/pipeline"
	"github.com/mmr-tortoise/goose-ci/internal/process"
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// deps holds everything the commands touch outside the process itself.
// Tests replace these to run the CLI without real child processes.
type deps struct {
	stdout io.Writer
	stderr io.Writer

	// getwd returns the directory the run starts from.
	getwd func() (string, error)

	// newRunner builds the process runner. Child output goes to the given
	// writers.
	newRunner func(logger *log.Logger, stdout, stderr io.Writer) process.Runner

	// pipelineOpts are passed to pipeline.New.
	pipelineOpts []pipeline.Option
}

func defaultDeps() *deps {
	return &deps{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getwd:  os.Getwd,
		newRunner: func(logger *log.Logger, stdout, stderr io.Writer) process.Runner {
			return process.NewExecRunner(logger, process.WithOutput(stdout, stderr))
		},
	}
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(d *deps) *cobra.Command {
	opts := &model.Options{}

	rootCmd := &cobra.Command{
		Use:   "goose-ci",
		Short: "Run the goose test suite",
		Long: `goose-ci builds and tests the goose OpenStack client from its workspace.

It puts the workspace containing src/launchpad.net/goose first on GOPATH for
every command it runs, then runs "go build" and "go test ./...". With --live
it also runs the live tests of each service suite. With --tarmac it first
prepares the merge bot's workspace.

Examples:
  goose-ci
  goose-ci --live
  goose-ci --tarmac --live --json`,

		// Positional arguments are a usage error like a bad flag.
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError(cmd, err)
			}
			return nil
		},

		// SilenceUsage prevents cobra from printing usage on every error.
		// Usage is printed for flag errors only, by usageError.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// Execute formats them (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCI(cmd.Context(), d, *opts)
		},
	}

	rootCmd.SetOut(d.stdout)
	rootCmd.SetErr(d.stderr)

	// PersistentFlags are inherited by the config subcommand, so
	// "goose-ci config --config ci.yaml" shows what a run would use.
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Be chatty")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Print the run report as JSON on stdout")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Configuration file (default: .goose-ci.yaml in the working directory)")

	rootCmd.Flags().BoolVar(&opts.Tarmac, "tarmac", false,
		"Pass this if the script is running as the tarmac bot. "+
			"This is used for stuff like ensuring repositories and logging directories are initialized.")
	rootCmd.Flags().BoolVar(&opts.Live, "live", false,
		"Run tests against a live service.")

	rootCmd.SetFlagErrorFunc(usageError)

	rootCmd.AddCommand(newConfigCommand(d, opts))

	return rootCmd
}

// usageError prints the command usage and wraps err so the process exits
// with ExitUsage.
func usageError(cmd *cobra.Command, err error) error {
	cmd.PrintErrln(cmd.UsageString())
	return model.WrapCLIError(model.ExitUsage, "invalid arguments", err)
}

// newLogger creates the diagnostic logger. Diagnostics always go to w,
// never to stdout, so --json output stays parseable.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: "goose-ci",
		Level:  level,
	})
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// SIGINT and SIGTERM cancel the command's context, which stops the running
// child process.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json")
	os.Exit(int(exitCode(err, rootCmd.ErrOrStderr(), jsonOutput)))
}

// exitCode reports err on w and returns the exit code for it.
//
// CLIError types carry their own exit codes; other errors default to exit
// code 1.
func exitCode(err error, w io.Writer, jsonOutput bool) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, jsonOutput, cliErr.Message, cliErr.Err)
		return cliErr.Code
	}

	printError(w, jsonOutput, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, jsonOutput bool, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for the run report.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}
