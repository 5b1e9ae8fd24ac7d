package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sophialabs/mimic/internal/domain/store"
)

var _ store.Store = (*FileStore)(nil)

const fileExt = ".json"

// FileStore is a MemoryStore persisted as one JSON document. Every write
// rewrites the document through a temp file and rename.
type FileStore struct {
	*MemoryStore
	path string

	// serialises persists so a slow write never overwrites a newer one
	writeMu sync.Mutex
}

func openFileStore(dir, name string) (*FileStore, error) {
	fs := &FileStore{
		MemoryStore: NewMemoryStore(name),
		path:        storePath(dir, name),
	}

	data, err := os.ReadFile(fs.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read store %q: %w", name, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &fs.items); err != nil {
			return nil, fmt.Errorf("failed to decode store %q: %w", name, err)
		}
	}
	return fs, nil
}

func (s *FileStore) Save(ctx context.Context, key string, value any) error {
	if err := s.MemoryStore.Save(ctx, key, value); err != nil {
		return err
	}
	return s.persist()
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := s.MemoryStore.Delete(ctx, key); err != nil {
		return err
	}
	return s.persist()
}

func (s *FileStore) persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store %q: %w", s.name, err)
	}
	return atomicWriteFile(s.path, data)
}

func storePath(dir, name string) string {
	return filepath.Join(dir, url.PathEscape(name)+fileExt)
}

// atomicWriteFile writes content to a temp file then renames it to the target path.
func atomicWriteFile(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".mimic-store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// persistedNames lists the stores saved under dir.
func persistedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
