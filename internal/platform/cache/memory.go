package cache

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the in-process tier when no size is configured.
const DefaultMemoryEntries = 10000

// MemoryTier is an entry-count bounded LRU.
type MemoryTier struct {
	lru *lru.Cache[string, Entry]
}

var _ Tier = (*MemoryTier)(nil)

// NewMemoryTier creates an LRU tier holding at most size entries.
// If size is 0 or negative, it defaults to DefaultMemoryEntries.
func NewMemoryTier(size int) (*MemoryTier, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	c, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryTier{lru: c}, nil
}

func (m *MemoryTier) Name() string { return "memory" }

func (m *MemoryTier) Get(_ context.Context, ns, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(compositeKey(ns, key))
	return e, ok, nil
}

func (m *MemoryTier) Set(_ context.Context, e Entry) error {
	m.lru.Add(compositeKey(e.Namespace, e.Key), e)
	return nil
}

func (m *MemoryTier) Delete(_ context.Context, ns, key string) error {
	m.lru.Remove(compositeKey(ns, key))
	return nil
}

func (m *MemoryTier) DeleteNamespace(_ context.Context, ns string) error {
	prefix := safe(ns) + ":"
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
	return nil
}

// Len returns the number of resident entries.
func (m *MemoryTier) Len() int { return m.lru.Len() }
