package images

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// MemoryStore keeps images in process memory. Intended for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, data []byte, name string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("images.MemoryStore.Save: %w", err)
	}
	s.mu.Lock()
	s.objs[name] = slices.Clone(data)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.objs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.objs, name)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := slices.Sorted(maps.Keys(s.objs))
	if names == nil {
		names = []string{}
	}
	return names, nil
}
