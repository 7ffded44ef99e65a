package cli

import (
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/dbgenai/stackctl/internal/config"
	"github.com/dbgenai/stackctl/internal/databricks"
	"github.com/dbgenai/stackctl/internal/engine"
	"github.com/dbgenai/stackctl/internal/envfile"
	"github.com/dbgenai/stackctl/internal/stack"
)

// runSetup bundles everything a stage command needs before building an engine.
type runSetup struct {
	Config    config.Config
	Registry  *stack.Registry
	Selection stack.Selection
	Overrides envfile.Vars
}

// loadSetup loads the configuration, validates the stage registry and parses
// the selection and overrides for one command invocation.
func loadSetup(opts *Options, args []string) (*runSetup, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	overrides, err := envfile.ParseInlineVars(opts.Vars)
	if err != nil {
		return nil, err
	}

	registry, err := stack.NewRegistry(stack.Builtin(cfg))
	if err != nil {
		return nil, err
	}

	sel := stack.AllStages()
	if len(args) > 0 {
		sel = stack.SingleStage(args[0])
	}

	return &runSetup{
		Config:    cfg,
		Registry:  registry,
		Selection: sel,
		Overrides: overrides,
	}, nil
}

// modelResolverFactory builds the model registry client bound to the workspace
// URL once the workspace stage's outputs are known.
func modelResolverFactory(logger *slog.Logger, cred azcore.TokenCredential, cfg config.Config) engine.ResolverFactory {
	return func(workspaceURL string) (engine.ModelResolver, error) {
		tokens := databricks.NewAADTokenProvider(cred, cfg.DatabricksAppID)
		return databricks.NewClient(logger, workspaceURL, tokens)
	}
}

// lazyModelResolverFactory defers credential acquisition until the registry is
// actually queried, so read-only runs do not require a credential up front.
func lazyModelResolverFactory(logger *slog.Logger, cfg config.Config) engine.ResolverFactory {
	return func(workspaceURL string) (engine.ModelResolver, error) {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		return modelResolverFactory(logger, cred, cfg)(workspaceURL)
	}
}

// summarize logs the per-stage outcome of a run.
func summarize(logger *slog.Logger, operation string, report *engine.Report) {
	if report == nil {
		return
	}
	if stages := report.Succeeded(); len(stages) > 0 {
		logger.Info(operation+" completed stages", "stages", stages)
	}
	if stages := report.Skipped(); len(stages) > 0 {
		logger.Warn(operation+" skipped stages", "stages", stages)
	}
	if stages := report.Failed(); len(stages) > 0 {
		logger.Error(operation+" failed stages", "stages", stages)
	}
}
