package signalcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemorySize = 10000

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process cache holding one size-bounded LRU per namespace.
// Least recently used entries are evicted first; expired entries are dropped
// on read.
type Memory struct {
	mu         sync.Mutex
	namespaces map[string]*lru.Cache[string, memoryEntry]
	size       int
	now        func() time.Time
}

// NewMemory builds a cache holding at most size entries per namespace.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		namespaces: make(map[string]*lru.Cache[string, memoryEntry]),
		size:       size,
		now:        time.Now,
	}, nil
}

func memoryKey(ns, key string) string {
	return ns + ":" + key
}

// namespace returns the LRU for ns, creating it when create is set.
func (m *Memory) namespace(ns string, create bool) (*lru.Cache[string, memoryEntry], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.namespaces[ns]; ok || !create {
		return c, nil
	}
	c, err := lru.New[string, memoryEntry](m.size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache for %s: %w", ns, err)
	}
	m.namespaces[ns] = c
	return c, nil
}

func (m *Memory) Get(_ context.Context, ns, key string, dst any) (bool, error) {
	entries, _ := m.namespace(ns, false)
	if entries == nil {
		return false, nil
	}
	e, ok := entries.Get(key)
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		entries.Remove(key)
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", memoryKey(ns, key), err)
	}
	return true, nil
}

// Set stores value; a ttl <= 0 means the entry never expires.
func (m *Memory) Set(_ context.Context, ns, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", memoryKey(ns, key), err)
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	entries, err := m.namespace(ns, true)
	if err != nil {
		return err
	}
	entries.Add(key, e)
	return nil
}

func (m *Memory) Delete(_ context.Context, ns, key string) error {
	if entries, _ := m.namespace(ns, false); entries != nil {
		entries.Remove(key)
	}
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.namespaces {
		c.Purge()
	}
	return nil
}

func (m *Memory) Close() error {
	return m.Clear(context.Background())
}

func (m *Memory) Backend() string { return "memory" }

// Len is the number of stored entries across namespaces, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.namespaces {
		n += c.Len()
	}
	return n
}
