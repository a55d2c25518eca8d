// Package secrets implements the injectable SecretStore capability called
// for once at startup (spec.md §9's re-architecture directive), backed by
// HashiCorp Vault's AppRole auth and KV v2 engine, ported from
// original_source/ananke/struct/vault.py.
package secrets

import (
	"context"
	"fmt"
	"os"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/doubleverify/ananke/internal/model"
)

// EnvVaultSecret is the environment variable carrying the AppRole secret id.
const EnvVaultSecret = "ANANKE_VAULT_SECRET"

// Store reads secret keys that are merged into target variables.
type Store interface {
	ReadKeys(paths []string) (map[string]string, error)
}

// NullStore is used when settings.vault is unset; it contributes nothing.
type NullStore struct{}

func (NullStore) ReadKeys([]string) (map[string]string, error) { return nil, nil }

// VaultStore reads KV v2 secrets from HashiCorp Vault after an AppRole login.
type VaultStore struct {
	client     *vaultapi.Client
	mountPoint string
}

// NewVaultStore logs into Vault with AppRole credentials and returns a Store
// scoped to the configured mount point.
func NewVaultStore(cfg *model.VaultSettings) (*VaultStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vault settings not configured")
	}
	secretID := os.Getenv(EnvVaultSecret)
	if secretID == "" {
		return nil, fmt.Errorf("%s env variable must be populated for vault use", EnvVaultSecret)
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.URL
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("building vault client: %w", err)
	}

	loginResp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   cfg.RoleID,
		"secret_id": secretID,
	})
	if err != nil {
		return nil, fmt.Errorf("vault approle login: %w", err)
	}
	if loginResp == nil || loginResp.Auth == nil {
		return nil, fmt.Errorf("unable to authenticate to vault")
	}
	client.SetToken(loginResp.Auth.ClientToken)

	return &VaultStore{client: client, mountPoint: cfg.MountPoint}, nil
}

// ReadKeys reads and merges the KV v2 data at each path under the mount
// point, later paths overriding earlier ones on key collision.
func (s *VaultStore) ReadKeys(paths []string) (map[string]string, error) {
	joined := map[string]string{}
	for _, path := range paths {
		secret, err := s.client.KVv2(s.mountPoint).Get(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("reading vault path %s: %w", path, err)
		}
		for k, v := range secret.Data {
			if s, ok := v.(string); ok {
				joined[k] = s
			}
		}
	}
	return joined, nil
}
