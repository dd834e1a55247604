package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/goose-ci/internal/config"
	"github.com/mmr-tortoise/goose-ci/internal/model"
	"github.com/mmr-tortoise/goose-ci/internal/pipeline"
)

// runCI is the main logic of the root command. It loads the configuration,
// runs the pipeline and reports the result.
//
// The returned error carries the exit code: nil for success, a
// *model.CLIError with the run's status when a stage failed, and
// ExitGeneralError for setup problems or an interrupted run. Execute turns
// it into the process exit status.
func runCI(ctx context.Context, d *deps, opts model.Options) error {
	logger := newLogger(d.stderr, opts.Verbose)
	ctx = log.WithContext(ctx, logger)

	// Step 1: Find where the run starts. Everything below is relative to
	// this directory; the process never changes it.
	dir, err := d.getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get working directory", err)
	}

	// Step 2: Load the configuration (defaults, optional file, GOOSECI_*).
	cfg, path, err := config.Load(opts.ConfigPath, dir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	if path != "" {
		logger.Debug("Loaded configuration", "path", path)
	}

	// Step 3: Run the stages. With --json, stdout carries the report, so
	// child output is sent to stderr.
	childOut := d.stdout
	if opts.JSON {
		childOut = d.stderr
	}
	runner := d.newRunner(logger, childOut, d.stderr)
	report := pipeline.New(cfg, runner, logger, dir, d.pipelineOpts...).Run(ctx, opts)

	// Step 4: Output the report.
	if opts.JSON {
		if err := printReportJSON(d.stdout, report); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to write report", err)
		}
	} else if opts.Verbose {
		printReportText(d.stderr, report)
	}

	// Step 5: Map the outcome to an exit code. An interrupt wins over
	// whatever status the stages reported before it.
	if err := ctx.Err(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "run interrupted", err)
	}
	if !report.Code.IsSuccess() {
		return model.NewCLIError(report.Code, fmt.Sprintf("run failed with exit status %s", report.Code))
	}
	return nil
}
