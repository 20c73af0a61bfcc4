package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps lists in process memory. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	lists   map[string][]string
	updated map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:   make(map[string][]string),
		updated: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.lists[key]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), values...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append([]string(nil), values...)
	m.updated[key] = time.Now().UTC()
	return nil
}

func (m *MemoryStore) LastUpdated(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.updated[key]
	return t, ok, nil
}

func (m *MemoryStore) Kind() string { return "memory" }
