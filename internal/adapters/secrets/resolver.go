package secrets

import (
	"context"
	"fmt"

	"github.com/assocworks/sepa-billing/internal/config"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// ResolveDatabasePassword resolves the database credential from the
// configured backend. The "env" backend keeps whatever DB_PASSWORD holds.
func ResolveDatabasePassword(ctx context.Context, cfg *config.Config, logger ports.Logger) (string, error) {
	switch cfg.Secrets.Backend {
	case "env", "":
		return cfg.Database.Password, nil

	case "local":
		manager := NewLocalSecretManager(cfg.Secrets.LocalPath, logger)
		secret, err := manager.GetSecret(ctx, "db_password")
		if err != nil {
			return "", err
		}
		return secret.Value, nil

	case "aws":
		awsCfg := DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		manager, err := NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
		if err != nil {
			return "", err
		}
		secret, err := manager.GetSecret(ctx, cfg.Secrets.AWSSecretID)
		if err != nil {
			return "", err
		}
		return secret.Value, nil

	case "vault":
		vaultCfg := DefaultVaultConfig(cfg.Secrets.VaultAddress)
		vaultCfg.Token = cfg.Secrets.VaultToken
		vaultCfg.MountPath = cfg.Secrets.VaultMount
		manager, err := NewVaultAdapter(ctx, vaultCfg, logger)
		if err != nil {
			return "", err
		}
		secret, err := manager.GetSecret(ctx, cfg.Secrets.VaultPath)
		if err != nil {
			return "", err
		}
		return secret.Value, nil
	}
	return "", fmt.Errorf("unknown secrets backend %q", cfg.Secrets.Backend)
}
