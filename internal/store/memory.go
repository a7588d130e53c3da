package store

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Memory is a volatile Store backed by a map. It is intended for tests and
// for one-shot runs that do not need persistence.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Item)}
}

// Get returns a copy of the item at key.
func (m *Memory) Get(_ context.Context, key string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}

	return it.Clone(), nil
}

// Put stores a copy of item.
func (m *Memory) Put(_ context.Context, item Item) error {
	key := item.Key()
	if key == "" {
		return ErrMissingKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = item.Clone()

	return nil
}

// Update merges fields into the item at key.
func (m *Memory) Update(_ context.Context, key string, fields map[string]string, cond Condition) error {
	if key == "" {
		return ErrMissingKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		if cond == MustExist {
			return ErrConditionFailed
		}

		it = Item{KeyAttribute: key}
	}

	maps.Copy(it, fields)
	it[KeyAttribute] = key
	m.items[key] = it

	return nil
}

// Query scans items in key order for the first attribute match.
func (m *Memory) Query(_ context.Context, index, attribute, value string) (string, error) {
	if err := CheckQuery(index, attribute); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range slices.Sorted(maps.Keys(m.items)) {
		if v, ok := m.items[key][attribute]; ok && v == value {
			return key, nil
		}
	}

	return "", ErrNotFound
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
