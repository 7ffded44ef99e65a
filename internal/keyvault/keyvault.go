// Package keyvault writes exported values into an Azure Key Vault and manages
// the access policy that lets the compute platform read them back.
package keyvault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// Store pushes secrets into vaults within one subscription.
type Store struct {
	logger         *slog.Logger
	cred           azcore.TokenCredential
	tenantID       string
	subscriptionID string

	// secretClients caches one data-plane client per vault.
	secretClients map[string]*azsecrets.Client
}

// NewStore constructs a Key Vault store for the given credential and tenant.
func NewStore(logger *slog.Logger, cred azcore.TokenCredential, tenantID, subscriptionID string) *Store {
	return &Store{
		logger:         logger,
		cred:           cred,
		tenantID:       tenantID,
		subscriptionID: subscriptionID,
		secretClients:  make(map[string]*azsecrets.Client),
	}
}

// VaultURI returns the data-plane endpoint for a vault name.
func VaultURI(vault string) string {
	return fmt.Sprintf("https://%s.vault.azure.net", vault)
}

// SetSecret writes one secret value into the named vault. The value never
// reaches the logs.
func (s *Store) SetSecret(ctx context.Context, vault, name, value string) error {
	client, err := s.secretClient(vault)
	if err != nil {
		return err
	}
	s.logger.Info("setting key vault secret", "vault", vault, "secret", name)
	params := azsecrets.SetSecretParameters{Value: &value}
	if _, err := client.SetSecret(ctx, name, params, nil); err != nil {
		return fmt.Errorf("set secret %q in vault %q: %w", name, vault, err)
	}
	return nil
}

// GrantReadAccess adds a get/list secrets access policy for the given service
// principal object id. Re-adding an existing policy is a harmless overwrite.
func (s *Store) GrantReadAccess(ctx context.Context, resourceGroup, vault, objectID string) error {
	if objectID == "" {
		return fmt.Errorf("grant read access on vault %q: service principal object id is empty", vault)
	}
	if s.subscriptionID == "" {
		return fmt.Errorf("grant read access on vault %q: subscription id is empty", vault)
	}

	vaults, err := armkeyvault.NewVaultsClient(s.subscriptionID, s.cred, nil)
	if err != nil {
		return fmt.Errorf("create key vault management client: %w", err)
	}

	s.logger.Info("granting secret read access", "vault", vault, "objectId", objectID)
	params := armkeyvault.VaultAccessPolicyParameters{
		Properties: &armkeyvault.VaultAccessPolicyProperties{
			AccessPolicies: []*armkeyvault.AccessPolicyEntry{
				{
					TenantID: to.Ptr(s.tenantID),
					ObjectID: to.Ptr(objectID),
					Permissions: &armkeyvault.Permissions{
						Secrets: []*armkeyvault.SecretPermissions{
							to.Ptr(armkeyvault.SecretPermissionsGet),
							to.Ptr(armkeyvault.SecretPermissionsList),
						},
					},
				},
			},
		},
	}
	_, err = vaults.UpdateAccessPolicy(ctx, resourceGroup, vault, armkeyvault.AccessPolicyUpdateKindAdd, params, nil)
	if err != nil {
		return fmt.Errorf("update access policy on vault %q: %w", vault, err)
	}
	return nil
}

func (s *Store) secretClient(vault string) (*azsecrets.Client, error) {
	if client, ok := s.secretClients[vault]; ok {
		return client, nil
	}
	client, err := azsecrets.NewClient(VaultURI(vault), s.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create secret client for vault %q: %w", vault, err)
	}
	s.secretClients[vault] = client
	return client, nil
}
