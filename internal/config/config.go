// Package config contains the loader and strongly typed model for the
// stackctl configuration. A Config value is built once at startup by layering
// built-in defaults, an optional YAML file and STACKCTL_*/AZURE_* environment
// variables, and is passed into the drivers as an immutable value.
package config

import (
	"fmt"
	"os"

	envparse "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default path to the stackctl configuration file.
const DefaultConfigPath = "stackctl.yaml"

// Config holds every tunable input of the provisioning stages plus the Azure
// identifiers required by the exporter.
type Config struct {
	// TerraformRoot is the directory containing the per-stage working directories.
	TerraformRoot string `yaml:"terraformRoot" env:"STACKCTL_TERRAFORM_ROOT"`
	// TerraformBin is the terraform binary to invoke.
	TerraformBin string `yaml:"terraformBin" env:"STACKCTL_TERRAFORM_BIN"`
	// EnvFile is the local environment-variable file regenerated on deploy.
	EnvFile string `yaml:"envFile" env:"STACKCTL_ENV_FILE"`

	// ResourceGroupNamePrefix prefixes the generated resource group name.
	ResourceGroupNamePrefix string `yaml:"resourceGroupNamePrefix" env:"STACKCTL_RESOURCE_GROUP_NAME_PREFIX"`
	// Location is the Azure region for all stages.
	Location string `yaml:"location" env:"STACKCTL_LOCATION"`

	// AccountNamePrefix prefixes the generated OpenAI account name.
	AccountNamePrefix string `yaml:"accountNamePrefix" env:"STACKCTL_ACCOUNT_NAME_PREFIX"`
	// AccountSKU is the OpenAI account SKU.
	AccountSKU string `yaml:"accountSku" env:"STACKCTL_ACCOUNT_SKU"`

	// DeploymentName is the model deployment name on the OpenAI account.
	DeploymentName string `yaml:"deploymentName" env:"STACKCTL_DEPLOYMENT_NAME"`
	// ModelName is the deployed model name.
	ModelName string `yaml:"modelName" env:"STACKCTL_MODEL_NAME"`
	// ModelVersion is the deployed model version.
	ModelVersion string `yaml:"modelVersion" env:"STACKCTL_MODEL_VERSION"`
	// ScaleType selects the deployment scale type.
	ScaleType string `yaml:"scaleType" env:"STACKCTL_SCALE_TYPE"`
	// DeploymentCapacity is the deployment capacity in scale units.
	DeploymentCapacity int `yaml:"deploymentCapacity" env:"STACKCTL_DEPLOYMENT_CAPACITY"`
	// OpenAIAPIVersion is the API version consumed by downstream clients.
	OpenAIAPIVersion string `yaml:"openaiApiVersion" env:"STACKCTL_OPENAI_API_VERSION"`

	// WorkspaceNamePrefix prefixes the generated Databricks workspace name.
	WorkspaceNamePrefix string `yaml:"workspaceNamePrefix" env:"STACKCTL_WORKSPACE_NAME_PREFIX"`
	// WorkspaceSKU is the Databricks workspace SKU.
	WorkspaceSKU string `yaml:"workspaceSku" env:"STACKCTL_WORKSPACE_SKU"`

	// KeyVaultNamePrefix prefixes the generated Key Vault name.
	KeyVaultNamePrefix string `yaml:"keyVaultNamePrefix" env:"STACKCTL_KEY_VAULT_NAME_PREFIX"`
	// KeyVaultSKU is the Key Vault SKU.
	KeyVaultSKU string `yaml:"keyVaultSku" env:"STACKCTL_KEY_VAULT_SKU"`
	// SecretScopeName is the Databricks secret scope backed by the Key Vault.
	SecretScopeName string `yaml:"secretScopeName" env:"STACKCTL_SECRET_SCOPE_NAME"`

	// OpenAIPyPIPackage pins the openai package installed on the cluster.
	OpenAIPyPIPackage string `yaml:"openaiPypiPackage" env:"STACKCTL_OPENAI_PYPI_PACKAGE"`
	// UseMLRuntime selects an ML runtime for the compute cluster.
	UseMLRuntime bool `yaml:"useMlRuntime" env:"STACKCTL_USE_ML_RUNTIME"`

	// ServingEndpointName is the model serving endpoint name.
	ServingEndpointName string `yaml:"servingEndpointName" env:"STACKCTL_SERVING_ENDPOINT_NAME"`
	// ServingModelName is the registered model served by the endpoint.
	ServingModelName string `yaml:"servingModelName" env:"STACKCTL_SERVING_MODEL_NAME"`
	// ServingModelVersion pins the served model version; empty means the
	// newest registered version is resolved from the model registry.
	ServingModelVersion string `yaml:"servingModelVersion" env:"STACKCTL_SERVING_MODEL_VERSION"`
	// ServingWorkloadSize is the serving endpoint workload size.
	ServingWorkloadSize string `yaml:"servingWorkloadSize" env:"STACKCTL_SERVING_WORKLOAD_SIZE"`
	// ServingScaleToZero enables scale-to-zero on the serving endpoint.
	ServingScaleToZero bool `yaml:"servingScaleToZero" env:"STACKCTL_SERVING_SCALE_TO_ZERO"`
	// ServingTrafficPercentage routes this share of traffic to the served model.
	ServingTrafficPercentage int `yaml:"servingTrafficPercentage" env:"STACKCTL_SERVING_TRAFFIC_PERCENTAGE"`

	// AzureTenantID is the AAD tenant used for the Key Vault access grant.
	AzureTenantID string `yaml:"azureTenantId" env:"AZURE_TENANT_ID"`
	// AzureSubscriptionID is the subscription holding the resource group.
	AzureSubscriptionID string `yaml:"azureSubscriptionId" env:"AZURE_SUBSCRIPTION_ID"`
	// DatabricksAppID is the application id of the Azure Databricks service
	// principal granted read access to the vault.
	DatabricksAppID string `yaml:"databricksAppId" env:"STACKCTL_DATABRICKS_APP_ID"`
	// DatabricksObjectID is the tenant-local object id of that principal.
	DatabricksObjectID string `yaml:"databricksObjectId" env:"STACKCTL_DATABRICKS_OBJECT_ID"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		TerraformRoot: "terraform",
		TerraformBin:  "terraform",
		EnvFile:       ".env",

		ResourceGroupNamePrefix: "rg-dbgenai",
		Location:                "eastus2",

		AccountNamePrefix: "aoaidbgenai",
		AccountSKU:        "S0",

		DeploymentName:     "gpt-5-chat",
		ModelName:          "gpt-5-chat",
		ModelVersion:       "2025-10-03",
		ScaleType:          "GlobalStandard",
		DeploymentCapacity: 1,
		OpenAIAPIVersion:   "2024-02-15-preview",

		WorkspaceNamePrefix: "adb-genai",
		WorkspaceSKU:        "premium",

		KeyVaultNamePrefix: "kvdbgenai",
		KeyVaultSKU:        "standard",
		SecretScopeName:    "aoai-scope",

		OpenAIPyPIPackage: "openai==1.56.0",
		UseMLRuntime:      true,

		ServingEndpointName:      "basic-chatbot-endpoint",
		ServingModelName:         "basic-chatbot",
		ServingWorkloadSize:      "Small",
		ServingScaleToZero:       true,
		ServingTrafficPercentage: 100,

		// First-party application id of Azure Databricks, identical in every tenant.
		DatabricksAppID: "2ff814a6-3304-4ab8-85cb-cd0e6f879c1d",
	}
}

// Load builds the effective configuration: built-in defaults, overridden by
// the YAML file at path when it exists, overridden by environment variables.
// A missing file at the default path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %q: %w", path, err)
			}
		case os.IsNotExist(err) && path == DefaultConfigPath:
			// Optional default file.
		default:
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := envparse.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment overrides: %w", err)
	}

	return cfg, nil
}
