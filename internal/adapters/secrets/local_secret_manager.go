package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// localSecretManager implements SecretManagerAdapter using the local
// filesystem. Development only; production deployments use AWS Secrets
// Manager or Vault.
type localSecretManager struct {
	basePath string
	logger   ports.Logger
}

// NewLocalSecretManager creates a new local filesystem secret manager
func NewLocalSecretManager(basePath string, logger ports.Logger) ports.SecretManagerAdapter {
	return &localSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads a secret file relative to the base path. Files may be
// plain text or JSON with a "value" field.
func (m *localSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	filePath := filepath.Join(m.basePath, secretPath)

	m.logger.Debug("reading secret from filesystem",
		ports.String("path", secretPath))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value string            `json:"value"`
		Tags  map[string]string `json:"tags"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &ports.Secret{
			Value:    secretData.Value,
			Version:  "v1",
			Metadata: secretData.Tags,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimRight(string(data), "\n"),
		Version: "v1",
	}, nil
}
