package storage

import (
	"bytes"
	"context"
	"livegame-tracker/internal/domain"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	list     [][]byte
	expireAt time.Time
}

// MemoryBackend keeps everything in process memory. Expiry is evaluated
// lazily on access against the injected clock.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{entries: make(map[string]*memoryEntry), now: now}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Ping(context.Context) error { return nil }

// lookup must be called with mu held.
func (m *MemoryBackend) lookup(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryBackend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryBackend) PushCapped(_ context.Context, key string, value []byte, limit int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key)
	if e == nil {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	list := make([][]byte, 0, len(e.list)+1)
	list = append(list, bytes.Clone(value))
	list = append(list, e.list...)
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	e.list = list
	if ttl > 0 {
		e.expireAt = m.expiry(ttl)
	}
	return nil
}

// Range follows redis LRANGE index semantics, including negative indexes.
func (m *MemoryBackend) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range e.list[start : stop+1] {
		out = append(out, bytes.Clone(v))
	}
	return out, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key)
	if e == nil || e.value == nil {
		return nil, domain.ErrNotFound
	}
	return bytes.Clone(e.value), nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memoryEntry{value: bytes.Clone(value), expireAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryBackend) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lookup(key) != nil {
		return false, nil
	}
	m.entries[key] = &memoryEntry{value: bytes.Clone(value), expireAt: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryBackend) DeleteIfEqual(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key)
	if e == nil || !bytes.Equal(e.value, value) {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}
