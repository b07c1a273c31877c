package store

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type MemoryStore[T any] struct {
	mu sync.RWMutex
	Db map[string]T
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{
		Db: make(map[string]T),
	}
}

func (m *MemoryStore[T]) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Db), nil
}

func (m *MemoryStore[T]) Get(key string) (v T, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.Db[key]
	if !ok {
		return v, errors.Wrap(ErrNotFound, key)
	}

	return v, nil
}

// List returns values in key order, matching the bbolt store.
func (m *MemoryStore[T]) List() ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.Db))
	for k := range m.Db {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vs := make([]T, 0, len(keys))
	for _, k := range keys {
		vs = append(vs, m.Db[k])
	}

	return vs, nil
}

func (m *MemoryStore[T]) Put(key string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Db[key] = value
	return nil
}
