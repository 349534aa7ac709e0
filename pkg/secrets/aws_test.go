package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretsManagerMock struct {
	values map[string]*string
	calls  []string
}

func (m *secretsManagerMock) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls = append(m.calls, *params.SecretId)
	v, ok := m.values[*params.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: v}, nil
}

func TestAWSSecretsProvider_Get(t *testing.T) {
	key := "aws-anon-key"
	mock := &secretsManagerMock{values: map[string]*string{"huddle/anon_key": &key, "huddle/binary": nil}}
	p := &AWSSecretsProvider{client: mock}

	val, err := p.Get("huddle/anon_key")
	require.NoError(t, err)
	assert.Equal(t, "aws-anon-key", val)

	_, err = p.Get("huddle/missing")
	require.ErrorContains(t, err, "ResourceNotFoundException")

	_, err = p.Get("huddle/binary")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"huddle/anon_key", "huddle/missing", "huddle/binary"}, mock.calls)
}
