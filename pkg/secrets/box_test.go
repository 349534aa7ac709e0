package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_SealOpen(t *testing.T) {
	b, err := NewBox([]byte("test_key"))
	require.NoError(t, err)

	sealed, err := b.Seal("test_value")
	require.NoError(t, err)
	t.Logf("sealed value: %s", sealed)

	sealed2, err := b.Seal("test_value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2, "each seal uses fresh nonce and salt")

	opened, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "test_value", opened)

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewBox([]byte("other_key"))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		require.EqualError(t, err, "failed to decrypt")
	})

	t.Run("short value", func(t *testing.T) {
		_, err := b.Open("c2hvcnQ=")
		require.EqualError(t, err, "sealed value is too short")
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := b.Open("%%%")
		require.Error(t, err)
	})
}

func TestNewBox_EmptyKey(t *testing.T) {
	_, err := NewBox(nil)
	require.Error(t, err)
}

func TestDBType(t *testing.T) {
	tbl := []struct {
		conn, want string
		err        bool
	}{
		{"postgres://u:p@localhost/db", "postgres", false},
		{"postgresql://localhost/db", "postgres", false},
		{"root:pass@tcp(localhost:3306)/huddle", "mysql", false},
		{"file:///tmp/huddle.db", "sqlite", false},
		{"/var/lib/huddle/secrets.sqlite", "sqlite", false},
		{"secrets.db", "sqlite", false},
		{"mongodb://localhost", "", true},
	}
	for _, tt := range tbl {
		t.Run(tt.conn, func(t *testing.T) {
			got, err := DBType(tt.conn)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
