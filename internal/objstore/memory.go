package objstore

import (
	"context"
	"sync"
)

// Memory is an in-process object store for tests. Get allows tests to
// assert an artifact exists at a path.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	base    string
}

func NewMemoryStore() *Memory {
	return &Memory{objects: map[string][]byte{}, base: "https://assets.test"}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	return m.base + "/" + key, nil
}

// Get returns the stored bytes for a key, or nil if absent.
func (m *Memory) Get(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

// Len reports how many distinct objects exist, for duplicate-artifact
// assertions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
