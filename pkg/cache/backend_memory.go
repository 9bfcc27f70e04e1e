package cache

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

type memGeneration struct {
	seq     uint64
	entries map[string][]byte
}

// MemoryBackend keeps generations in process memory. Entries are never
// evicted; the contents are lost on restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	seq  uint64
	gens map[string]*memGeneration
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{gens: map[string]*memGeneration{}}
}

func (m *MemoryBackend) createLocked(name string) *memGeneration {
	g, ok := m.gens[name]
	if !ok {
		m.seq++
		g = &memGeneration{seq: m.seq, entries: map[string][]byte{}}
		m.gens[name] = g
	}
	return g
}

// CreateGeneration registers name; existing generations are left untouched.
func (m *MemoryBackend) CreateGeneration(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createLocked(name)
	return nil
}

// HasGeneration reports whether name is registered.
func (m *MemoryBackend) HasGeneration(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.gens[name]
	return ok, nil
}

// Generations returns the registered names in creation order.
func (m *MemoryBackend) Generations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.gens))
	for name := range m.gens {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.gens[out[i]].seq < m.gens[out[j]].seq
	})
	return out, nil
}

// DropGeneration removes name and its entries, reporting whether it existed.
func (m *MemoryBackend) DropGeneration(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.gens[name]
	delete(m.gens, name)
	return ok, nil
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (m *MemoryBackend) Get(ctx context.Context, generation, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gens[generation]
	if !ok {
		return nil, ErrCacheMiss
	}
	v, ok := g.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return bytes.Clone(v), nil
}

// Put stores a copy of value, registering the generation if needed.
func (m *MemoryBackend) Put(ctx context.Context, generation, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createLocked(generation).entries[key] = bytes.Clone(value)
	return nil
}

// Delete removes one key, reporting whether it was present.
func (m *MemoryBackend) Delete(ctx context.Context, generation, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[generation]
	if !ok {
		return false, nil
	}
	_, ok = g.entries[key]
	delete(g.entries, key)
	return ok, nil
}

// Keys returns the generation's keys in sorted order.
func (m *MemoryBackend) Keys(ctx context.Context, generation string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gens[generation]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(g.entries))
	for k := range g.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
