// Package storage provides the key/value persistence used by the SDK queues.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/penshort/beacon/internal/config"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Logical keys persisted per instance.
const (
	KeyRequestQueue = "cly_queue"
	KeyEventQueue   = "cly_event"
	KeyDeviceID     = "cly_id"
	KeyConsent      = "cly_consent"
	KeySession      = "cly_session"
	KeyBehavior     = "cly_bs"
)

// Store is a string key/value store.
type Store interface {
	// Get returns the value under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// KV is the read/write surface the queues and filters need.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Namespaced prefixes every key with "{prefix}/" so instances sharing one
// backend never see each other's data.
type Namespaced struct {
	prefix string
	store  Store
}

// WithNamespace wraps store under prefix.
func WithNamespace(store Store, prefix string) *Namespaced {
	return &Namespaced{prefix: prefix, store: store}
}

// Key returns the physical key for a logical key.
func (n *Namespaced) Key(key string) string {
	return n.prefix + "/" + key
}

// Get reads a logical key.
func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.Key(key))
}

// Set writes a logical key.
func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.Key(key), value)
}

// Remove deletes a logical key.
func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.Key(key))
}

// Close closes the underlying store.
func (n *Namespaced) Close() error {
	return n.store.Close()
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg *config.SDK) (Store, error) {
	switch cfg.Storage {
	case "", config.StorageMemory:
		return NewMemory(), nil
	case config.StorageRedis:
		return NewRedis(ctx, cfg.RedisURL)
	case config.StorageSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
