package secrets

import (
	"fmt"
	"sync"
)

// MemoryProvider keeps secrets in memory. Made for tests and for values passed on the command line.
type MemoryProvider struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryProvider makes a provider with a copy of secrets.
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	res := &MemoryProvider{secrets: make(map[string]string, len(secrets))}
	for k, v := range secrets {
		res.secrets[k] = v
	}
	return res
}

// Get returns the secret for the given key.
func (m *MemoryProvider) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if val, ok := m.secrets[key]; ok {
		return val, nil
	}
	return "", fmt.Errorf("memory secret %s: %w", key, ErrNotFound)
}

// Set adds or replaces the secret.
func (m *MemoryProvider) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
}
