package kv

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. It is used for local runs
// and tests and supports conditional writes.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("cas", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[key]
	if old == nil {
		if ok {
			return ErrConflict
		}
	} else if !ok || !bytes.Equal(cur, old) {
		return ErrConflict
	}
	m.data[key] = bytes.Clone(value)
	return nil
}
