package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

// Memory is an in-process Latest.
type Memory struct {
	entries map[string]sensor.Reading
	primed  bool
	mu      sync.RWMutex
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]sensor.Reading)}
}

// Offer stores r unless a newer reading is already cached.
func (m *Memory) Offer(_ context.Context, r sensor.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offer(r)
	return nil
}

// Prime merges readings into the cache and marks it primed.
func (m *Memory) Prime(_ context.Context, readings []sensor.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		m.offer(r)
	}
	m.primed = true
	return nil
}

func (m *Memory) offer(r sensor.Reading) {
	if cur, ok := m.entries[r.DeviceID]; ok && !r.After(cur) {
		return
	}
	m.entries[r.DeviceID] = r
}

// All returns a copy of the cached readings, or ErrCold before Prime.
func (m *Memory) All(_ context.Context) (map[string]sensor.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.primed {
		return nil, ErrCold
	}
	return maps.Clone(m.entries), nil
}

// Reset drops every entry and the primed mark.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	m.primed = false
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
