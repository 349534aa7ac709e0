// Package secrets provides secret providers used to resolve backend credentials, e.g. the anon key,
// from a secret storage instead of plain configuration. It also has the encrypted database used by
// the internal provider and by the sql session store.
package secrets

import (
	"errors"
	"fmt"
	"log"
)

// Provider returns a secret value by key.
type Provider interface {
	Get(key string) (string, error)
}

// ErrNotFound is returned for a missing secret.
var ErrNotFound = errors.New("secret not found")

// Params defines provider selection for New.
type Params struct {
	Provider string // none, env, internal, vault, aws or ansible

	Key  string // internal provider encryption key
	Conn string // internal provider database

	EnvPrefix string // env provider variable prefix

	VaultURL   string
	VaultPath  string
	VaultToken string

	AwsRegion    string
	AwsAccessKey string
	AwsSecretKey string

	AnsibleFile   string
	AnsibleSecret string
}

// Providers lists supported provider names.
var Providers = []string{"none", "env", "internal", "vault", "aws", "ansible"}

// New makes the provider selected by params, NoOpProvider for "none" and unknown names.
func New(p Params) (Provider, error) {
	switch p.Provider {
	case "", "none":
		return &NoOpProvider{}, nil
	case "env":
		return NewEnvProvider(p.EnvPrefix), nil
	case "internal":
		return NewInternalProvider(p.Conn, []byte(p.Key))
	case "vault":
		return NewHashiVaultProvider(p.VaultURL, p.VaultPath, p.VaultToken)
	case "aws":
		return NewAWSSecretsProvider(p.AwsAccessKey, p.AwsSecretKey, p.AwsRegion)
	case "ansible":
		return NewAnsibleVaultProvider(p.AnsibleFile, p.AnsibleSecret)
	}
	log.Printf("[WARN] unknown secrets provider %q", p.Provider)
	return &NoOpProvider{}, nil
}

// NoOpProvider is a provider without secrets.
type NoOpProvider struct{}

// Get returns an error on every key.
func (p *NoOpProvider) Get(key string) (string, error) {
	return "", fmt.Errorf("no secrets provider for %s: %w", key, ErrNotFound)
}
