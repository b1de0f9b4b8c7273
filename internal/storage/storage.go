// Package storage defines the persisted key-value store that mirrors the
// search history and ignore list, plus typed JSON blobs on top of it.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Keys of the two persisted blobs.
const (
	KeySearchHistory = "searchHistory"
	KeyIgnoredDates  = "ignoredDates"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a last-writer-wins key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a Store backend.
type Options struct {
	Driver       string
	DatabasePath string
	RedisURL     string
	KeyPrefix    string
}

// Open returns the backend named by opts.Driver. An empty driver means SQLite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(opts.DatabasePath)
	case DriverRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.KeyPrefix)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
