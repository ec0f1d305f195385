package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type entry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend. Expired keys are dropped lazily on
// read and in bulk by Sweep, which the scheduler's cache_sweep task runs.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time

	hits   int64
	misses int64
}

type MemoryOption func(*MemoryBackend)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) { m.now = now }
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		items: make(map[string]entry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, false, nil
	}
	// 过期即删除
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		m.misses++
		return nil, false, nil
	}
	m.hits++
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return e.expiresAt.IsZero() || m.now().Before(e.expiresAt), nil
}

// Sweep removes expired keys and reports how many were dropped.
func (m *MemoryBackend) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.items {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	m.items = make(map[string]entry)
	m.mu.Unlock()
}

type Stats struct {
	Size   int      `json:"size"`
	Hits   int64    `json:"hits"`
	Misses int64    `json:"misses"`
	Keys   []string `json:"keys"`
}

func (m *MemoryBackend) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Stats{Size: len(m.items), Hits: m.hits, Misses: m.misses, Keys: keys}
}
