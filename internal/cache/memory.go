package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store is the minimal contract both cache backings satisfy.
type Store interface {
	// Get returns the value for key and whether it was present and fresh.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// MemoryStore is a bounded LRU with per-entry TTLs. It is the shadow cache
// that keeps serving while the Redis circuit is open.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element

	now func() time.Time
}

// NewMemoryStore creates an LRU store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached value if present and not expired.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.order.Remove(elem)
		delete(m.entries, key)
		return "", false, nil
	}

	m.order.MoveToFront(elem)
	return entry.value, true, nil
}

// Set writes the value, evicting the least recently used entry when full.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.now().Add(ttl)

	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expires
		m.order.MoveToFront(elem)
		return nil
	}

	for len(m.entries) >= m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}

	elem := m.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expires})
	m.entries[key] = elem
	return nil
}

// Len returns the number of live entries (expired entries may be counted
// until their next access).
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
