package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/flash-deal/internal/port"
)

type memoryEntry struct {
	quantity  int64
	expiresAt time.Time
}

// MemoryCache is a single-process CacheRepository. Every method holds one
// lock for its whole duration, which gives it the same atomicity as the
// Redis scripts. Key expiry is tracked against the clock passed in.
type MemoryCache struct {
	now func() time.Time

	mu       sync.Mutex
	counters map[string]int64
	sets     map[string]map[string]memoryEntry
	guards   map[string]time.Time
	expiry   map[string]time.Time
}

var _ port.CacheRepository = (*MemoryCache)(nil)

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		now:      now,
		counters: make(map[string]int64),
		sets:     make(map[string]map[string]memoryEntry),
		guards:   make(map[string]time.Time),
		expiry:   make(map[string]time.Time),
	}
}

// evict drops key if its TTL has lapsed. Callers hold mu.
func (m *MemoryCache) evict(key string) {
	exp, ok := m.expiry[key]
	if !ok || m.now().Before(exp) {
		return
	}
	delete(m.expiry, key)
	delete(m.counters, key)
	delete(m.sets, key)
}

func (m *MemoryCache) SetStock(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.expiry, key)
	m.counters[key] = value
	return nil
}

func (m *MemoryCache) GetStock(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)
	v, ok := m.counters[key]
	return v, ok, nil
}

func (m *MemoryCache) DecrementStock(_ context.Context, key string, amount int64) (int64, bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)
	current, ok := m.counters[key]
	if !ok {
		return 0, false, false, nil
	}
	if current < amount {
		return current, false, true, nil
	}
	m.counters[key] = current - amount
	return current - amount, true, true, nil
}

func (m *MemoryCache) IncrementStock(_ context.Context, key string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)
	m.counters[key] += amount
	return m.counters[key], nil
}

func (m *MemoryCache) AddEntry(_ context.Context, setKey, memberID string, quantity int64, expiry time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[setKey]
	if !ok {
		set = make(map[string]memoryEntry)
		m.sets[setKey] = set
	}
	if _, exists := set[memberID]; exists {
		return false, nil
	}
	set[memberID] = memoryEntry{quantity: quantity, expiresAt: expiry}
	return true, nil
}

func (m *MemoryCache) RemoveEntry(_ context.Context, setKey, memberID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sets[setKey]
	e, ok := set[memberID]
	if !ok {
		return 0, 0, nil
	}
	delete(set, memberID)
	return 1, e.quantity, nil
}

func (m *MemoryCache) ListExpired(_ context.Context, setKey string, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, e := range m.sortedEntries(setKey) {
		if e.ExpiresAt.Before(now) {
			ids = append(ids, e.MemberID)
		}
	}
	return ids, nil
}

func (m *MemoryCache) ListEntries(_ context.Context, setKey string) ([]port.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedEntries(setKey), nil
}

func (m *MemoryCache) CountEntries(_ context.Context, setKey string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.sets[setKey] {
		if !e.expiresAt.Before(now) {
			n++
		}
	}
	return n, nil
}

// sortedEntries orders by expiry then id, like a sorted set. Callers hold mu.
func (m *MemoryCache) sortedEntries(setKey string) []port.CacheEntry {
	entries := make([]port.CacheEntry, 0, len(m.sets[setKey]))
	for id, e := range m.sets[setKey] {
		entries = append(entries, port.CacheEntry{MemberID: id, Quantity: e.quantity, ExpiresAt: e.expiresAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ExpiresAt.Equal(entries[j].ExpiresAt) {
			return entries[i].MemberID < entries[j].MemberID
		}
		return entries[i].ExpiresAt.Before(entries[j].ExpiresAt)
	})
	return entries
}

func (m *MemoryCache) SetTTL(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expiry[key] = m.now().Add(ttl)
	return nil
}

// GetTTL mirrors go-redis: -2 for a missing key, -1 for a key without expiry.
func (m *MemoryCache) GetTTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)
	_, isCounter := m.counters[key]
	_, isSet := m.sets[key]
	if !isCounter && !isSet {
		return -2, nil
	}
	exp, ok := m.expiry[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(m.now()), nil
}

func (m *MemoryCache) SetIdempotency(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.guards[key]; ok && m.now().Before(exp) {
		return false, nil
	}
	m.guards[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryCache) ClearIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.guards, key)
	return nil
}
