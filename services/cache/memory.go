package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned when a key is absent or its TTL has passed
var ErrMiss = errors.New("cache miss")

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryService implements CacheService in process memory. It is the default
// when no memcache address is configured.
type MemoryService struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryService creates an empty in-memory cache service
func NewMemoryService() *MemoryService {
	return &MemoryService{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// WithClock overrides the cache clock, for tests
func (m *MemoryService) WithClock(now func() time.Time) *MemoryService {
	m.now = now
	return m
}

// Get retrieves a value when present and unexpired
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok || !item.expiresAt.After(m.now()) {
		return nil, ErrMiss
	}
	return item.value, nil
}

// Set stores a value with an expiration time
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = memoryItem{
		value:     value,
		expiresAt: m.now().Add(expiration),
	}
	return nil
}

// Delete removes a value
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}
