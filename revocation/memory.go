package revocation

import (
	"sync"
	"time"
)

// memorySet is the degraded-mode revocation set. Entries expire with their token.
type memorySet struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func newMemorySet(now func() time.Time) *memorySet {
	return &memorySet{entries: make(map[string]time.Time), now: now}
}

func (m *memorySet) add(key string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	if cur, ok := m.entries[key]; ok && cur.After(expiresAt) {
		return
	}
	m.entries[key] = expiresAt
	m.sweepLocked()
}

func (m *memorySet) contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.entries[key]
	if !ok {
		return false
	}
	if !m.now().Before(expiresAt) {
		delete(m.entries, key)
		return false
	}
	return true
}

func (m *memorySet) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.entries)
}

func (m *memorySet) sweepLocked() {
	now := m.now()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
}
