package secrets

import (
	"context"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestHashiVaultProvider_Get(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container tests in short mode")
	}
	vaultC, vaultAddr := createVaultTestContainer(t)
	defer vaultC.Terminate(context.Background()) // nolint

	vaultClient, err := api.NewClient(&api.Config{Address: vaultAddr})
	require.NoError(t, err, "failed to create Vault client")
	vaultClient.SetToken("myroot-token")

	_, err = vaultClient.Logical().Write("secret/data/huddle", map[string]any{
		"data": map[string]any{"anon_key": "vault-anon-key", "port": 443},
	})
	require.NoError(t, err, "failed to write secret to Vault")

	p, err := NewHashiVaultProvider(vaultAddr, "secret/data/huddle", "myroot-token")
	require.NoError(t, err)

	t.Run("existing key", func(t *testing.T) {
		val, err := p.Get("anon_key")
		require.NoError(t, err)
		assert.Equal(t, "vault-anon-key", val)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := p.Get("service_key")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not a string", func(t *testing.T) {
		_, err := p.Get("port")
		require.ErrorContains(t, err, "unexpected vault value format")
	})

	t.Run("invalid token", func(t *testing.T) {
		invalid, err := NewHashiVaultProvider(vaultAddr, "secret/data/huddle", "invalid-token")
		require.NoError(t, err)
		_, err = invalid.Get("anon_key")
		require.ErrorContains(t, err, "permission denied")
	})
}

func createVaultTestContainer(t *testing.T) (vaultC testcontainers.Container, vaultAddr string) {
	t.Helper()
	ctx := context.Background()
	vaultC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "hashicorp/vault:1.15",
			ExposedPorts: []string{"8200/tcp"},
			Env: map[string]string{
				"VAULT_DEV_ROOT_TOKEN_ID":  "myroot-token",
				"VAULT_DEV_LISTEN_ADDRESS": "0.0.0.0:8200",
			},
			WaitingFor: wait.ForHTTP("/v1/sys/init").WithPort("8200/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Vault container")

	host, err := vaultC.Host(ctx)
	require.NoError(t, err)
	port, err := vaultC.MappedPort(ctx, "8200")
	require.NoError(t, err)
	return vaultC, "http://" + host + ":" + port.Port()
}
