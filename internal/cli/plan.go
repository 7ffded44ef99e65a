package cli

import (
	"github.com/spf13/cobra"

	"github.com/dbgenai/stackctl/internal/engine"
	"github.com/dbgenai/stackctl/internal/terraform"
)

// newPlanCommand creates the "plan" subcommand that previews stage changes
// without mutating remote state or exporting anything.
func newPlanCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [stage]",
		Short: "Preview stage changes without applying them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			setup, err := loadSetup(opts, args)
			if err != nil {
				return err
			}

			eng := engine.New(engine.Params{
				Logger:      logger,
				Registry:    setup.Registry,
				Runner:      terraform.NewRunner(setup.Config.TerraformBin, logger),
				Root:        setup.Config.TerraformRoot,
				Overrides:   setup.Overrides,
				NewResolver: lazyModelResolverFactory(logger, setup.Config),
			})

			logger.Info("starting plan", "selection", setup.Selection.String())
			report, err := eng.Plan(cmd.Context(), setup.Selection)
			summarize(logger, "plan", report)
			return err
		},
	}

	return cmd
}
