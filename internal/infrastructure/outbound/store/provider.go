package store

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ store.Provider = (*Provider)(nil)

// Backend names accepted by NewProvider.
const (
	BackendInMemory = "inmemory"
	BackendFile     = "file"
)

// Provider hands out named stores. Ephemeral stores always live in memory;
// durable ones use the configured backend.
type Provider struct {
	backend string
	dir     string
	logger  ports.Logger

	mu     sync.RWMutex
	stores map[string]store.Store
}

// NewProvider creates a provider for backend ("inmemory" or "file"). dir is
// the directory of the file backend and is created when missing.
func NewProvider(backend, dir string, logger ports.Logger) (*Provider, error) {
	switch strings.ToLower(backend) {
	case "", BackendInMemory:
		backend = BackendInMemory
	case BackendFile:
		if dir == "" {
			return nil, fmt.Errorf("file store backend requires a directory")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		backend = BackendFile
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}

	return &Provider{
		backend: backend,
		dir:     dir,
		logger:  logger,
		stores:  make(map[string]store.Store),
	}, nil
}

// GetOrCreate returns the named store, creating it on first reference.
func (p *Provider) GetOrCreate(_ context.Context, name string, ephemeral bool) (store.Store, error) {
	p.mu.RLock()
	s, ok := p.stores[name]
	p.mu.RUnlock()
	if ok {
		return s, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.stores[name]; ok {
		return s, nil
	}

	s, err := p.open(name, ephemeral)
	if err != nil {
		return nil, err
	}
	p.stores[name] = s
	p.logger.Debug("store created", "store", name, "ephemeral", ephemeral)
	return s, nil
}

func (p *Provider) open(name string, ephemeral bool) (store.Store, error) {
	if ephemeral || p.backend == BackendInMemory {
		return NewMemoryStore(name), nil
	}
	return openFileStore(p.dir, name)
}

// Lookup returns an existing store. Stores persisted by an earlier run of the
// file backend count as existing.
func (p *Provider) Lookup(ctx context.Context, name string) (store.Store, error) {
	p.mu.RLock()
	s, ok := p.stores[name]
	p.mu.RUnlock()
	if ok {
		return s, nil
	}

	if p.backend == BackendFile && slices.Contains(p.persisted(), name) {
		return p.GetOrCreate(ctx, name, false)
	}
	return nil, fmt.Errorf("%w: %s", store.ErrStoreNotFound, name)
}

// Delete drops a store and, for the file backend, its document.
func (p *Provider) Delete(_ context.Context, name string) error {
	p.mu.Lock()
	s, ok := p.stores[name]
	delete(p.stores, name)
	p.mu.Unlock()

	if _, isMemory := s.(*MemoryStore); (ok && isMemory) || p.backend != BackendFile {
		return nil
	}
	if err := os.Remove(storePath(p.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove store %q: %w", name, err)
	}
	return nil
}

// Names returns the open and persisted store names, sorted.
func (p *Provider) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.stores))
	for name := range p.stores {
		names = append(names, name)
	}
	p.mu.RUnlock()

	for _, name := range p.persisted() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (p *Provider) persisted() []string {
	if p.backend != BackendFile {
		return nil
	}
	names, err := persistedNames(p.dir)
	if err != nil {
		p.logger.Warn("failed to list persisted stores", "dir", p.dir, "error", err)
	}
	return names
}
