package resources

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Cleanup strategies.
const (
	StrategyLRU    = "lru"
	StrategyLFU    = "lfu"
	StrategyFIFO   = "fifo"
	StrategyTTL    = "ttl"
	StrategySize   = "size"
	StrategyHybrid = "hybrid"
)

type memEntry struct {
	id          string
	size        int
	release     func()
	registered  time.Time
	lastAccess  time.Time
	accessCount int
	seq         int
}

// MemoryManager tracks registered transient resources (execution contexts,
// buffered payloads, caches) and evicts them per a configured strategy.
// Crossing the warning threshold logs; crossing the critical threshold
// forces synchronous cleanup back down to the warning threshold before the
// registration returns.
type MemoryManager struct {
	strategy string
	warning  int
	critical int
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]*memEntry
	usage   int
	seq     int
}

// NewMemoryManager builds a manager. Thresholds are in the same units the
// callers pass to Register; zero values disable the corresponding behavior.
func NewMemoryManager(strategy string, warning, critical int, ttl time.Duration) *MemoryManager {
	if strategy == "" {
		strategy = StrategyLRU
	}
	return &MemoryManager{
		strategy: strategy,
		warning:  warning,
		critical: critical,
		ttl:      ttl,
		entries:  make(map[string]*memEntry),
	}
}

// Register tracks a resource. release is invoked when the manager evicts
// it; Register may evict other resources synchronously when the critical
// threshold is crossed.
func (m *MemoryManager) Register(id string, size int, release func()) {
	m.mu.Lock()

	if old, ok := m.entries[id]; ok {
		m.usage -= old.size
	}
	m.seq++
	now := time.Now()
	m.entries[id] = &memEntry{
		id:         id,
		size:       size,
		release:    release,
		registered: now,
		lastAccess: now,
		seq:        m.seq,
	}
	m.usage += size

	var released []func()
	if m.critical > 0 && m.usage > m.critical {
		released = m.evictLocked(m.warning)
	} else if m.warning > 0 && m.usage > m.warning {
		slog.Warn("memory usage above warning threshold",
			"usage", m.usage, "warning", m.warning, "resources", len(m.entries))
	}
	m.mu.Unlock()

	for _, fn := range released {
		if fn != nil {
			fn()
		}
	}
}

// Touch records an access for recency and frequency accounting.
func (m *MemoryManager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.lastAccess = time.Now()
		e.accessCount++
	}
}

// Release removes a resource without invoking its release callback; the
// caller already owns the teardown.
func (m *MemoryManager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		m.usage -= e.size
		delete(m.entries, id)
	}
}

// Usage returns the total tracked size.
func (m *MemoryManager) Usage() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Count returns the number of tracked resources.
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep evicts expired entries under the ttl strategy and anything needed
// to reach the warning threshold under the others. Intended for periodic
// invocation.
func (m *MemoryManager) Sweep() {
	m.mu.Lock()
	released := m.evictLocked(m.warning)
	m.mu.Unlock()
	for _, fn := range released {
		if fn != nil {
			fn()
		}
	}
}

// evictLocked removes entries per the strategy until usage is at or below
// target, returning the release callbacks to run outside the lock. The ttl
// strategy only ever removes expired entries regardless of target.
func (m *MemoryManager) evictLocked(target int) []func() {
	var released []func()

	if m.strategy == StrategyTTL {
		if m.ttl <= 0 {
			return nil
		}
		cutoff := time.Now().Add(-m.ttl)
		for id, e := range m.entries {
			if e.registered.Before(cutoff) {
				m.usage -= e.size
				delete(m.entries, id)
				released = append(released, e.release)
			}
		}
		return released
	}

	if target <= 0 || m.usage <= target {
		return nil
	}

	candidates := make([]*memEntry, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(a, b int) bool {
		return m.evictBefore(candidates[a], candidates[b])
	})

	for _, e := range candidates {
		if m.usage <= target {
			break
		}
		m.usage -= e.size
		delete(m.entries, e.id)
		released = append(released, e.release)
	}
	return released
}

// evictBefore orders candidates so the best eviction victim sorts first.
func (m *MemoryManager) evictBefore(a, b *memEntry) bool {
	switch m.strategy {
	case StrategyLFU:
		if a.accessCount != b.accessCount {
			return a.accessCount < b.accessCount
		}
		return a.lastAccess.Before(b.lastAccess)
	case StrategyFIFO:
		return a.seq < b.seq
	case StrategySize:
		if a.size != b.size {
			return a.size > b.size
		}
		return a.seq < b.seq
	case StrategyHybrid:
		// Weight staleness by size: large idle entries go first.
		now := time.Now()
		scoreA := float64(a.size) * now.Sub(a.lastAccess).Seconds()
		scoreB := float64(b.size) * now.Sub(b.lastAccess).Seconds()
		if scoreA != scoreB {
			return scoreA > scoreB
		}
		return a.seq < b.seq
	default: // lru
		if !a.lastAccess.Equal(b.lastAccess) {
			return a.lastAccess.Before(b.lastAccess)
		}
		return a.seq < b.seq
	}
}
