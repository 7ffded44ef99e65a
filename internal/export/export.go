// Package export persists selected run outputs into the external secret store
// and the local environment file, governed by a static export policy.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbgenai/stackctl/internal/config"
	"github.com/dbgenai/stackctl/internal/databricks"
	"github.com/dbgenai/stackctl/internal/envfile"
	"github.com/dbgenai/stackctl/internal/stack"
)

// SecretStore is the destination for sensitive exported values.
type SecretStore interface {
	// SetSecret writes one named secret into the given vault.
	SetSecret(ctx context.Context, vault, name, value string) error
	// GrantReadAccess allows the given service principal to read vault secrets.
	GrantReadAccess(ctx context.Context, resourceGroup, vault, objectID string) error
}

// Entry maps one run value to its export destinations. A value missing from
// the run context is omitted entirely, never written empty.
type Entry struct {
	// ContextRef references a run value as "stageName.outputKey".
	ContextRef string
	// Literal supplies a configuration-derived value when ContextRef is empty.
	Literal string
	// SecretName is the secret-store entry name; empty means no secret write.
	SecretName string
	// EnvKey is the environment-file key; empty means no env-file write.
	EnvKey string
	// Sensitive entries go only to the secret store, never the env file.
	Sensitive bool
	// Transform optionally rewrites the value before export.
	Transform func(string) string
}

// DefaultPolicy returns the export policy: credentials and endpoints for
// downstream clients, with sensitive material confined to the secret store and
// the env file carrying only the non-sensitive references needed to retrieve
// it at runtime.
func DefaultPolicy(cfg config.Config) []Entry {
	return []Entry{
		{ContextRef: stack.RefOpenAIEndpoint, SecretName: "openai-api-base", EnvKey: "OPENAI_API_BASE"},
		{ContextRef: stack.RefOpenAIPrimaryKey, SecretName: "openai-api-key", EnvKey: "OPENAI_API_KEY", Sensitive: true},
		{Literal: cfg.OpenAIAPIVersion, SecretName: "openai-api-version", EnvKey: "OPENAI_API_VERSION"},
		{Literal: cfg.DeploymentName, SecretName: "openai-deployment-name", EnvKey: "OPENAI_DEPLOYMENT_NAME"},
		{ContextRef: stack.RefWorkspaceURL, EnvKey: "DATABRICKS_WORKSPACE_URL", Transform: databricks.NormalizeWorkspaceURL},
		{Literal: cfg.SecretScopeName, EnvKey: "OPENAI_SECRET_SCOPE"},
	}
}

// Exporter applies an export policy against the accumulated run context.
type Exporter struct {
	logger  *slog.Logger
	store   SecretStore
	policy  []Entry
	envPath string

	// databricksObjectID is the principal granted read access to the vault.
	databricksObjectID string
	granted            bool
}

// New constructs an exporter. store may be nil for runs that must not touch
// the secret store (plan); env-file writes still apply.
func New(logger *slog.Logger, store SecretStore, policy []Entry, envPath, databricksObjectID string) *Exporter {
	return &Exporter{
		logger:             logger,
		store:              store,
		policy:             policy,
		envPath:            envPath,
		databricksObjectID: databricksObjectID,
	}
}

// Export persists every policy entry whose value is available. Secret writes
// require the vault name in the context; until the secret-store stage has
// succeeded they are deferred, not failed. Missing context values are omitted
// so downstream consumers read absence as "not yet provisioned".
func (e *Exporter) Export(ctx context.Context, rc *stack.RunContext) error {
	vault, vaultReady := rc.Lookup(stack.RefKeyVaultName)

	if vaultReady && e.store != nil {
		if err := e.ensureAccess(ctx, rc, vault); err != nil {
			return err
		}
	}

	envValues := make(envfile.Vars)
	envOrder := make([]string, 0, len(e.policy))

	for _, entry := range e.policy {
		value, ok := e.resolve(entry, rc)
		if !ok {
			continue
		}

		if entry.SecretName != "" && e.store != nil {
			if !vaultReady {
				e.logger.Debug("secret store not provisioned yet, deferring", "secret", entry.SecretName)
			} else if err := e.store.SetSecret(ctx, vault, entry.SecretName, value); err != nil {
				return err
			}
		}

		if entry.EnvKey != "" && !entry.Sensitive {
			envValues[entry.EnvKey] = value
			envOrder = append(envOrder, entry.EnvKey)
		}
	}

	if len(envValues) == 0 {
		return nil
	}
	if err := envfile.Write(e.envPath, envOrder, envValues); err != nil {
		return err
	}
	e.logger.Info("wrote environment file", "path", e.envPath, "keys", len(envValues))
	return nil
}

// ensureAccess grants the compute platform's identity read access to the
// vault once per run.
func (e *Exporter) ensureAccess(ctx context.Context, rc *stack.RunContext, vault string) error {
	if e.granted {
		return nil
	}
	resourceGroup, ok := rc.Lookup(stack.RefResourceGroupName)
	if !ok {
		return fmt.Errorf("grant vault access: resource group name missing from run context")
	}
	if err := e.store.GrantReadAccess(ctx, resourceGroup, vault, e.databricksObjectID); err != nil {
		return err
	}
	e.granted = true
	return nil
}

// resolve returns the exportable value for an entry, or false when its source
// stage has not produced one.
func (e *Exporter) resolve(entry Entry, rc *stack.RunContext) (string, bool) {
	value := entry.Literal
	if entry.ContextRef != "" {
		v, ok := rc.Lookup(entry.ContextRef)
		if !ok {
			return "", false
		}
		value = v
	}
	if value == "" {
		return "", false
	}
	if entry.Transform != nil {
		value = entry.Transform(value)
	}
	return value, true
}
