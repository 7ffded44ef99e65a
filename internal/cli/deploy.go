package cli

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/dbgenai/stackctl/internal/engine"
	"github.com/dbgenai/stackctl/internal/export"
	"github.com/dbgenai/stackctl/internal/keyvault"
	"github.com/dbgenai/stackctl/internal/terraform"
)

// newDeployCommand creates the "deploy" subcommand that applies all stages, or
// a single stage on top of its previously deployed prerequisites.
func newDeployCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [stage]",
		Short: "Provision the environment stages in dependency order",
		Long: "Without arguments, deploy applies every registered stage in dependency order, " +
			"feeding each stage's outputs into the inputs of its dependents and exporting " +
			"credentials to the Key Vault and the local env file. With a stage name, only that " +
			"stage is applied; its prerequisites must have been deployed before and are read " +
			"back from their recorded state, not re-executed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			setup, err := loadSetup(opts, args)
			if err != nil {
				return err
			}
			cfg := setup.Config

			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return fmt.Errorf("acquire azure credentials: %w", err)
			}

			store := keyvault.NewStore(logger, cred, cfg.AzureTenantID, cfg.AzureSubscriptionID)
			exporter := export.New(logger, store, export.DefaultPolicy(cfg), cfg.EnvFile, cfg.DatabricksObjectID)

			eng := engine.New(engine.Params{
				Logger:      logger,
				Registry:    setup.Registry,
				Runner:      terraform.NewRunner(cfg.TerraformBin, logger),
				Exporter:    exporter,
				Root:        cfg.TerraformRoot,
				Overrides:   setup.Overrides,
				NewResolver: modelResolverFactory(logger, cred, cfg),
			})

			logger.Info("starting deploy", "selection", setup.Selection.String())
			report, err := eng.Deploy(cmd.Context(), setup.Selection)
			summarize(logger, "deploy", report)
			return err
		},
	}

	return cmd
}
