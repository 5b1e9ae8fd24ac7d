// Package store defines the named key/value store SPI used by captures,
// expressions and scripts.
package store

import (
	"context"
	"errors"
)

// ErrStoreNotFound indicates a named store does not exist.
var ErrStoreNotFound = errors.New("store not found")

// RequestStore is the name that refers to the current request's ephemeral store
// in expressions and capture definitions.
const RequestStore = "request"

// Store is a named mapping from string keys to arbitrary values.
// Each call is atomic per key; no cross-key or read-modify-write atomicity is implied.
type Store interface {
	Name() string
	Save(ctx context.Context, key string, value any) error
	// Load returns nil, nil when the key is absent.
	Load(ctx context.Context, key string) (any, error)
	Delete(ctx context.Context, key string) error
	LoadAll(ctx context.Context) (map[string]any, error)
	LoadByKeyPrefix(ctx context.Context, prefix string) (map[string]any, error)
	HasItemWithKey(ctx context.Context, key string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Provider hands out named stores, creating them on first reference.
type Provider interface {
	GetOrCreate(ctx context.Context, name string, ephemeral bool) (Store, error)
	// Lookup returns ErrStoreNotFound when the store has never been created.
	Lookup(ctx context.Context, name string) (Store, error)
	Delete(ctx context.Context, name string) error
	Names() []string
}
