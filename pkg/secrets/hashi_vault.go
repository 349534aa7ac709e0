package secrets

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// HashiVaultProvider reads secrets from a single HashiCorp Vault path, kv v1 or v2 engine.
type HashiVaultProvider struct {
	client *api.Client
	path   string
}

// NewHashiVaultProvider makes a vault provider for the secret path, e.g. secret/data/huddle.
func NewHashiVaultProvider(addr, path, token string) (*HashiVaultProvider, error) {
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("error creating vault client: %w", err)
	}
	client.SetToken(token)
	return &HashiVaultProvider{client: client, path: path}, nil
}

// Get reads the path and returns the key from it.
func (p *HashiVaultProvider) Get(key string) (string, error) {
	secret, err := p.client.Logical().ReadWithContext(context.Background(), p.path)
	if err != nil {
		return "", fmt.Errorf("error reading secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault path %s: %w", p.path, ErrNotFound)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]any); ok { // kv v2 wraps values
		data = nested
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault key %s: %w", key, ErrNotFound)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("unexpected vault value format for %s: %T", key, raw)
	}
	return value, nil
}
