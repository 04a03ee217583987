package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store. It backs the "memory" backend and the
// optional local tier in front of a persistent Store. Contents are lost on
// restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[memKey]Entry
}

type memKey struct {
	category Category
	key      string
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[memKey]Entry)}
}

func (m *Memory) Get(_ context.Context, key string, category Category) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey{category, key}]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Payload = clone(e.Payload)
	return e, nil
}

func (m *Memory) Put(_ context.Context, entry Entry) error {
	entry.Payload = clone(entry.Payload)
	m.mu.Lock()
	m.entries[memKey{entry.Category, entry.Key}] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string, category Category) error {
	m.mu.Lock()
	delete(m.entries, memKey{category, key})
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteExpired(_ context.Context, key string, category Category, asOf time.Time) error {
	k := memKey{category, key}
	m.mu.Lock()
	if e, ok := m.entries[k]; ok && e.Expired(asOf) {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of stored rows, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
