package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkStore runs the common store contract
func checkStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "sb-demo-auth-token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "sb-demo-auth-token", []byte(`{"access_token":"a1"}`)))
	data, err := s.Get(ctx, "sb-demo-auth-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"a1"}`, string(data))

	require.NoError(t, s.Set(ctx, "sb-demo-auth-token", []byte(`{"access_token":"a2"}`)))
	data, err = s.Get(ctx, "sb-demo-auth-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"a2"}`, string(data))

	require.NoError(t, s.Set(ctx, "other", []byte("x")))
	require.NoError(t, s.Delete(ctx, "sb-demo-auth-token"))
	_, err = s.Get(ctx, "sb-demo-auth-token")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, "sb-demo-auth-token"), "delete of missing key")

	data, err = s.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestMemory(t *testing.T) {
	checkStore(t, NewMemory())

	t.Run("values are copied", func(t *testing.T) {
		m := NewMemory()
		val := []byte("abc")
		require.NoError(t, m.Set(context.Background(), "k", val))
		val[0] = 'x'
		got, err := m.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
		got[0] = 'y'
		got2, err := m.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got2))
	})
}

func TestFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	f, err := NewFile(dir)
	require.NoError(t, err)
	checkStore(t, f)

	t.Run("file permissions and name", func(t *testing.T) {
		require.NoError(t, f.Set(context.Background(), "sb-demo/../auth", []byte("v")))
		fi, err := os.Stat(filepath.Join(dir, "sb-demo_.._auth.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".tmp", "no temp files left")
		}
	})

	t.Run("empty dir", func(t *testing.T) {
		_, err := NewFile("")
		require.Error(t, err)
	})
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewRedis(client, "", time.Hour)
	checkStore(t, r)

	t.Run("prefix and ttl", func(t *testing.T) {
		require.NoError(t, r.Set(context.Background(), "k1", []byte("v1")))
		assert.True(t, mr.Exists("huddle:k1"))
		assert.Equal(t, time.Hour, mr.TTL("huddle:k1"))

		mr.FastForward(2 * time.Hour)
		_, err := r.Get(context.Background(), "k1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server down", func(t *testing.T) {
		c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer c.Close()
		_, err := NewRedis(c, "x:", 0).Get(context.Background(), "k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestSQL(t *testing.T) {
	conn := "file://" + filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQL(conn, []byte("session-key"))
	require.NoError(t, err)
	defer s.Close()
	checkStore(t, s)

	t.Run("value is encrypted at rest", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), "k", []byte("plain-token")))
		var raw string
		require.NoError(t, s.db.QueryRow("SELECT sval FROM huddle_sessions WHERE skey = ?", "k").Scan(&raw))
		assert.NotContains(t, raw, "plain-token")
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewSQL(conn, nil)
		require.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	tbl := []struct {
		name   string
		params Params
		want   any
		err    bool
	}{
		{"default", Params{}, &Memory{}, false},
		{"memory", Params{Type: "memory"}, &Memory{}, false},
		{"file", Params{Type: "file", Dir: t.TempDir()}, &File{}, false},
		{"redis", Params{Type: "redis", RedisAddr: mr.Addr()}, &Redis{}, false},
		{"sql", Params{Type: "sql", Conn: "file://" + filepath.Join(t.TempDir(), "s.db"), Key: "k"}, &SQL{}, false},
		{"unknown", Params{Type: "blah"}, nil, true},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.params)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}
