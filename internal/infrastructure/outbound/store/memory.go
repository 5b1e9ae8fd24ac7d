// Package store provides the in-memory and file-backed store backends and
// the provider that hands out named stores.
package store

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/sophialabs/mimic/internal/domain/store"
)

var _ store.Store = (*MemoryStore)(nil)

// MemoryStore keeps items in a map guarded by a RWMutex.
type MemoryStore struct {
	name string

	mu    sync.RWMutex
	items map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, items: make(map[string]any)}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Save(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[key], nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) LoadAll(context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items), nil
}

func (s *MemoryStore) LoadByKeyPrefix(_ context.Context, prefix string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	for k, v := range s.items {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) HasItemWithKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key]
	return ok, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// snapshot returns a copy of the items; used by the file backend.
func (s *MemoryStore) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items)
}
