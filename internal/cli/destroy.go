package cli

import (
	"github.com/spf13/cobra"

	"github.com/dbgenai/stackctl/internal/engine"
	"github.com/dbgenai/stackctl/internal/terraform"
)

// newDestroyCommand creates the "destroy" subcommand that tears stages down in
// reverse dependency order.
func newDestroyCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy [stage]",
		Short: "Tear down the environment stages in reverse dependency order",
		Long: "Without arguments, destroy walks every registered stage in reverse dependency " +
			"order. With a stage name, the stage and everything depending on it are torn down, " +
			"dependents first. Teardown is best-effort: failures are recorded and the walk " +
			"continues, and the command exits nonzero when any stage remains.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			setup, err := loadSetup(opts, args)
			if err != nil {
				return err
			}

			eng := engine.New(engine.Params{
				Logger:    logger,
				Registry:  setup.Registry,
				Runner:    terraform.NewRunner(setup.Config.TerraformBin, logger),
				Root:      setup.Config.TerraformRoot,
				Overrides: setup.Overrides,
			})

			logger.Info("starting destroy", "selection", setup.Selection.String())
			report, err := eng.Destroy(cmd.Context(), setup.Selection)
			summarize(logger, "destroy", report)
			return err
		},
	}

	return cmd
}
