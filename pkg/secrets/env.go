package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables, key "anon_key" with prefix "HUDDLE_SECRET_"
// is read from HUDDLE_SECRET_ANON_KEY.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider makes env provider with the variable prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// Get returns the value of the variable, empty values are treated as missing.
func (p *EnvProvider) Get(key string) (string, error) {
	name := p.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	if v, ok := p.lookup(name); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("env secret %s: %w", name, ErrNotFound)
}
