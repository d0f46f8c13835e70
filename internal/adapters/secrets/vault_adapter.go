package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// VaultConfig contains configuration for the HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g. "https://vault.example.com:8200")
	Address string

	// Token for token authentication
	Token string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// Cache TTL
	CacheTTL time.Duration

	// Enable caching
	EnableCache bool

	// TLS configuration
	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for the Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		MountPath:   "secret",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// vaultAdapter implements SecretManagerAdapter for HashiCorp Vault using
// the KV v2 engine
type vaultAdapter struct {
	client *vault.Client
	config *VaultConfig
	logger ports.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a new HashiCorp Vault adapter
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger ports.Logger) (ports.SecretManagerAdapter, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	logger.Info("Vault adapter initialized",
		ports.String("address", cfg.Address),
		ports.String("mount_path", cfg.MountPath))

	return &vaultAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache: &secretCache{
			entries: make(map[string]*cacheEntry),
			enabled: cfg.EnableCache,
			ttl:     cfg.CacheTTL,
		},
	}, nil
}

// GetSecret reads a KV v2 secret. The secret's "value" field carries the
// payload; remaining fields become metadata.
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := a.cache.get(path); cached != nil {
		a.logger.Debug("secret retrieved from cache", ports.String("path", path))
		return cached, nil
	}

	kv := a.client.KVv2(a.config.MountPath)
	kvSecret, err := kv.Get(ctx, path)
	if err != nil {
		a.logger.Error("failed to retrieve secret",
			ports.String("path", path), ports.Err(err))
		return nil, fmt.Errorf("failed to get secret %s: %w", path, err)
	}

	secret := &ports.Secret{
		Version:  fmt.Sprintf("%d", kvSecret.VersionMetadata.Version),
		Metadata: make(map[string]string),
	}
	for key, raw := range kvSecret.Data {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		if key == "value" {
			secret.Value = value
		} else {
			secret.Metadata[key] = value
		}
	}
	if secret.Value == "" {
		return nil, fmt.Errorf("secret %s has no value field", path)
	}

	a.cache.set(path, secret)
	return secret, nil
}
