// Package session provides persistence for auth sessions. Stores keep opaque values by key,
// the backend client decides what goes there.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("session not found")

// Store is a key-value session storage. Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Params defines store selection for New.
type Params struct {
	Type string // memory, file, redis or sql

	Dir string // file store directory

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	TTL           time.Duration // redis key ttl, no expiration if 0

	Conn string // sql connection string, sqlite, postgres or mysql
	Key  string // sql store encryption key
}

// Types lists supported store types.
var Types = []string{"memory", "file", "redis", "sql"}

// New makes a store for the params type, memory store if type is empty.
func New(p Params) (Store, error) {
	switch p.Type {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(p.Dir)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: p.RedisAddr, Password: p.RedisPassword, DB: p.RedisDB})
		return NewRedis(client, p.RedisPrefix, p.TTL), nil
	case "sql":
		return NewSQL(p.Conn, []byte(p.Key))
	}
	return nil, fmt.Errorf("unsupported session store type %q", p.Type)
}
