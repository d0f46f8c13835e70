package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value    string
	Version  string
	Metadata map[string]string
}

// SecretManagerAdapter retrieves secrets from a secret management service.
// The reconciler uses it to resolve the database credential at startup;
// backends include the local filesystem, AWS Secrets Manager and Vault.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
