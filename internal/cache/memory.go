package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	fields    map[string][]byte
	expiresAt time.Time
}

// Memory 是进程内缓存，未配置 Redis 时使用。
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*memoryEntry
	gens    map[string]uint64
	now     func() time.Time
}

// NewMemory 创建进程内缓存，ttl <= 0 时使用 DefaultTTL。
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

// Get 读取用户的某个缓存字段。
func (m *Memory) Get(userID, field string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[userID]
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, false
	}
	value, ok := entry.fields[field]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Generation 返回用户当前的缓存代数。
func (m *Memory) Generation(userID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gens[userID], nil
}

// Set 在代数未变时写入用户的某个缓存字段，过期时间随用户键整体刷新。
func (m *Memory) Set(userID, field string, gen uint64, value []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[userID] != gen {
		return false
	}

	now := m.now()
	entry, ok := m.entries[userID]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &memoryEntry{fields: make(map[string][]byte)}
		m.entries[userID] = entry
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	entry.fields[field] = stored
	entry.expiresAt = now.Add(m.ttl)
	return true
}

// Invalidate 删除用户的全部缓存字段并推进代数。
func (m *Memory) Invalidate(userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.gens[userID]++
	m.mu.Unlock()
	return nil
}
