package secrets

import (
	"fmt"
	"log"
	"os"
	"strings"

	vault "github.com/sosedoff/ansible-vault-go"
	"gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads secrets from an ansible-vault encrypted yaml file.
// Nested values are addressed with dotted keys, e.g. "backend.anon_key".
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts the vault file with secret.
func NewAnsibleVaultProvider(vaultPath, secret string) (*AnsibleVaultProvider, error) {
	fi, err := os.Lstat(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("can't get fileinfo of %s: %w", vaultPath, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", vaultPath)
	}

	decrypted, err := vault.DecryptFile(vaultPath, secret)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt %s: %w", vaultPath, err)
	}
	log.Printf("[INFO] ansible vault file %s decrypted", vaultPath)

	m := make(map[string]any)
	if err := yaml.Unmarshal([]byte(decrypted), &m); err != nil {
		return nil, fmt.Errorf("can't unmarshal vault %s: %w", vaultPath, err)
	}
	return &AnsibleVaultProvider{data: m}, nil
}

// Get returns the value for key, walking nested maps for dotted keys.
func (p *AnsibleVaultProvider) Get(key string) (string, error) {
	cur, ok := p.data[key] // exact key wins over the nested lookup
	if !ok {
		cur = p.data
		for _, part := range strings.Split(key, ".") {
			m, isMap := cur.(map[string]any)
			if !isMap {
				return "", fmt.Errorf("ansible vault key %s: %w", key, ErrNotFound)
			}
			if cur, ok = m[part]; !ok {
				return "", fmt.Errorf("ansible vault key %s: %w", key, ErrNotFound)
			}
		}
	}
	if _, isMap := cur.(map[string]any); isMap {
		return "", fmt.Errorf("ansible vault key %s is not a value", key)
	}
	return fmt.Sprintf("%v", cur), nil
}
