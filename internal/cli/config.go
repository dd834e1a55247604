package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/goose-ci/internal/config"
	"github.com/mmr-tortoise/goose-ci/internal/model"
)

// newConfigCommand creates the "config" cobra command, which prints the
// configuration a run would use.
//
// It loads the configuration exactly as the root command does, from the
// same working directory and --config flag, but runs nothing. When a file
// was found its path is printed first as a YAML comment, so the output can
// be saved and used as a configuration file.
func newConfigCommand(d *deps, opts *model.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration a run would use, after applying defaults, the
configuration file and GOOSECI_* environment variables.

Examples:
  goose-ci config
  GOOSECI_LIVE_AGGREGATE=first goose-ci config`,

		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError(cmd, err)
			}
			return nil
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := d.getwd()
			if err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to get working directory", err)
			}

			cfg, path, err := config.Load(opts.ConfigPath, dir)
			if err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
			}

			out, err := config.Marshal(cfg)
			if err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to render configuration", err)
			}

			if path != "" {
				fmt.Fprintf(d.stdout, "# loaded from %s\n", path)
			}
			_, err = d.stdout.Write(out)
			return err
		},
	}
}
