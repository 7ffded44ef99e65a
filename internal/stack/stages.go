package stack

import (
	"github.com/dbgenai/stackctl/internal/config"
)

// Stage names as used in selections and context keys.
const (
	StageResourceGroup       = "resource-group"
	StageOpenAIAccount       = "openai-account"
	StageOpenAIDeployment    = "openai-deployment"
	StageDatabricksWorkspace = "databricks-workspace"
	StageKeyVault            = "key-vault"
	StageDatabricksCompute   = "databricks-compute"
	StageNotebooks           = "notebooks"
	StageServingEndpoint     = "serving-endpoint"
)

// Well-known context references consumed across stages and by the exporter.
const (
	RefResourceGroupName = StageResourceGroup + ".resource_group_name"
	RefAccountName       = StageOpenAIAccount + ".openai_account_name"
	RefAccountID         = StageOpenAIAccount + ".openai_account_id"
	RefOpenAIEndpoint    = StageOpenAIAccount + ".openai_endpoint"
	RefOpenAIPrimaryKey  = StageOpenAIAccount + ".openai_primary_key"
	RefWorkspaceURL      = StageDatabricksWorkspace + ".databricks_workspace_url"
	RefKeyVaultName      = StageKeyVault + ".key_vault_name"
)

// Builtin returns the registered stage set with input defaults taken from cfg.
// Directory names keep their historical numeric prefixes for compatibility
// with existing working trees; execution order is derived solely from the
// declared dependencies.
func Builtin(cfg config.Config) []Stage {
	servingVersion := any(nil)
	latestOf := cfg.ServingModelName
	if cfg.ServingModelVersion != "" {
		servingVersion = cfg.ServingModelVersion
		latestOf = ""
	}

	return []Stage{
		{
			Name: StageResourceGroup,
			Dir:  "01_resource_group",
			Inputs: []Input{
				{Key: "resource_group_name", Default: nil},
				{Key: "resource_group_name_prefix", Default: cfg.ResourceGroupNamePrefix},
				{Key: "location", Default: cfg.Location},
			},
			Outputs: []string{"resource_group_name"},
		},
		{
			Name:      StageOpenAIAccount,
			Dir:       "02_azure_openai",
			DependsOn: []string{StageResourceGroup},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "location", Default: cfg.Location},
				{Key: "account_name_prefix", Default: cfg.AccountNamePrefix},
				{Key: "sku_name", Default: cfg.AccountSKU},
			},
			Outputs: []string{
				"openai_account_name",
				"openai_account_id",
				"openai_endpoint",
				"openai_primary_key",
			},
		},
		{
			Name:      StageOpenAIDeployment,
			Dir:       "03_openai_deployment",
			DependsOn: []string{StageResourceGroup, StageOpenAIAccount},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "account_name", From: RefAccountName},
				{Key: "deployment_name", Default: cfg.DeploymentName},
				{Key: "model_name", Default: cfg.ModelName},
				{Key: "model_version", Default: cfg.ModelVersion},
				{Key: "scale_type", Default: cfg.ScaleType},
				{Key: "deployment_capacity", Default: cfg.DeploymentCapacity},
			},
			Import: &ImportRule{
				Address:  "azurerm_cognitive_deployment.main",
				Match:    []string{"already exists", "azurerm_cognitive_deployment"},
				IDFrom:   RefAccountID,
				IDSuffix: "/deployments/" + cfg.DeploymentName,
			},
		},
		{
			Name:      StageDatabricksWorkspace,
			Dir:       "04_databricks_workspace",
			DependsOn: []string{StageResourceGroup},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "location", Default: cfg.Location},
				{Key: "workspace_name_prefix", Default: cfg.WorkspaceNamePrefix},
				{Key: "sku", Default: cfg.WorkspaceSKU},
				{Key: "managed_resource_group_name", Default: nil},
			},
			Outputs: []string{"databricks_workspace_url"},
		},
		{
			Name:      StageKeyVault,
			Dir:       "05_key_vault",
			DependsOn: []string{StageResourceGroup},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "location", Default: cfg.Location},
				{Key: "key_vault_name_prefix", Default: cfg.KeyVaultNamePrefix},
				{Key: "sku_name", Default: cfg.KeyVaultSKU},
			},
			Outputs: []string{"key_vault_name"},
		},
		{
			Name:      StageDatabricksCompute,
			Dir:       "06_databricks_compute",
			DependsOn: []string{StageResourceGroup, StageDatabricksWorkspace, StageKeyVault},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "secret_scope_name", Default: cfg.SecretScopeName},
				{Key: "openai_pypi_package", Default: cfg.OpenAIPyPIPackage},
				{Key: "use_ml_runtime", Default: cfg.UseMLRuntime},
			},
		},
		{
			Name:      StageNotebooks,
			Dir:       "07_notebooks",
			DependsOn: []string{StageResourceGroup, StageDatabricksWorkspace},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
			},
		},
		{
			Name: StageServingEndpoint,
			Dir:  "08_serving_endpoint",
			DependsOn: []string{
				StageResourceGroup,
				StageDatabricksWorkspace,
				StageDatabricksCompute,
				StageNotebooks,
			},
			Inputs: []Input{
				{Key: "resource_group_name", From: RefResourceGroupName},
				{Key: "endpoint_name", Default: cfg.ServingEndpointName},
				{Key: "served_model_name", Default: cfg.ServingModelName},
				{Key: "model_name", Default: cfg.ServingModelName},
				{Key: "model_version", Default: servingVersion, LatestModelOf: latestOf},
				{Key: "secret_scope_name", Default: cfg.SecretScopeName},
				{Key: "workload_size", Default: cfg.ServingWorkloadSize},
				{Key: "scale_to_zero_enabled", Default: cfg.ServingScaleToZero},
				{Key: "traffic_percentage", Default: cfg.ServingTrafficPercentage},
			},
		},
	}
}
