package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// Default TTL per scan category. Metrics go stale fastest, system facts
// slowest. Overridable per category through Options.TTLOverrides.
var defaultTTL = map[models.ScanCategory]time.Duration{
	models.CategoryBasic:    5 * time.Minute,
	models.CategorySystem:   30 * time.Minute,
	models.CategoryServices: 10 * time.Minute,
	models.CategoryMetrics:  60 * time.Second,
}

// FallbackTTL applies to categories with no entry in the TTL table.
const FallbackTTL = 5 * time.Minute

// Options configures a Manager.
type Options struct {
	MaxEntries      int
	CleanupInterval time.Duration
	StaleMultiplier float64
	TTLOverrides    map[models.ScanCategory]time.Duration
	BackingPath     string
}

// Manager wraps the in-memory store with per-category TTL policy, an
// optional durable backing, and a background sweep. Backing failures
// degrade the manager to memory-only; they never fail cache operations.
type Manager struct {
	store  *Store
	ttls   map[models.ScanCategory]time.Duration
	logger *zap.Logger

	cleanupInterval time.Duration
	staleMultiplier float64

	backing  *Backing
	degraded bool
	mu       sync.Mutex // guards degraded and backing teardown

	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager builds a manager from validated options. A backing path that
// cannot be opened is logged and the manager starts memory-only.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	ttls := make(map[models.ScanCategory]time.Duration, len(defaultTTL))
	for cat, ttl := range defaultTTL {
		ttls[cat] = ttl
	}
	for cat, ttl := range opts.TTLOverrides {
		ttls[cat] = ttl
	}

	m := &Manager{
		store:           NewStore(opts.MaxEntries),
		ttls:            ttls,
		logger:          logger.Named("cache"),
		cleanupInterval: opts.CleanupInterval,
		staleMultiplier: opts.StaleMultiplier,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}

	if opts.BackingPath != "" {
		backing, err := NewBacking(opts.BackingPath)
		if err != nil {
			m.degraded = true
			m.logger.Warn("durable backing unavailable, running memory-only",
				zap.String("path", opts.BackingPath),
				zap.Error(err))
		} else {
			m.backing = backing
		}
	}
	return m
}

// TTLFor returns the effective TTL for a category.
func (m *Manager) TTLFor(category models.ScanCategory) time.Duration {
	if ttl, ok := m.ttls[category]; ok {
		return ttl
	}
	return FallbackTTL
}

// Get returns the live cached value for (key, category). On a memory miss
// it consults the durable backing and re-seeds memory with the remaining
// TTL when the row is still fresh.
func (m *Manager) Get(key string, category models.ScanCategory) (any, bool) {
	if v, ok := m.store.Get(key, category); ok {
		return v, true
	}

	backing := m.currentBacking()
	if backing == nil {
		return nil, false
	}

	result, cachedAt, ttl, ok, err := backing.Get(key, category)
	if err != nil {
		m.degrade("backing read failed", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	remaining := ttl - time.Since(cachedAt)
	if remaining <= 0 {
		return nil, false
	}

	m.store.Set(key, result, category, remaining)
	return result, true
}

// Set stores value under the category's default TTL.
func (m *Manager) Set(key string, value any, category models.ScanCategory) {
	m.SetWithTTL(key, value, category, m.TTLFor(category))
}

// SetWithTTL stores value with an explicit TTL. A TTL of zero or less
// yields an entry that is already expired on the next read. Scan results
// are also written through to the durable backing when one is attached.
func (m *Manager) SetWithTTL(key string, value any, category models.ScanCategory, ttl time.Duration) {
	m.store.Set(key, value, category, ttl)

	backing := m.currentBacking()
	if backing == nil || ttl <= 0 {
		return
	}
	if result, ok := value.(*models.ScanResult); ok {
		if err := backing.Set(key, category, result, ttl); err != nil {
			m.degrade("backing write failed", err)
		}
	}
}

// GetOrSet returns the cached value for (key, category) or invokes factory
// exactly once, caching a non-nil result. The second return reports whether
// the value came from cache.
func (m *Manager) GetOrSet(key string, category models.ScanCategory, factory func() (any, error)) (any, bool, error) {
	if v, ok := m.Get(key, category); ok {
		return v, true, nil
	}
	v, err := factory()
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		m.Set(key, v, category)
	}
	return v, false, nil
}

// Delete removes (key, category) from memory and from the backing.
func (m *Manager) Delete(key string, category models.ScanCategory) {
	m.store.Delete(key, category)
	if backing := m.currentBacking(); backing != nil {
		if err := backing.Delete(key, category); err != nil {
			m.degrade("backing delete failed", err)
		}
	}
}

// Clear drops all entries of a category, or the whole cache when the
// category is empty.
func (m *Manager) Clear(category models.ScanCategory) {
	m.store.Clear(category)
	if backing := m.currentBacking(); backing != nil {
		if err := backing.Clear(category); err != nil {
			m.degrade("backing clear failed", err)
		}
	}
}

// Start launches the background sweep. No-op when the cleanup interval is
// not positive.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	if m.cleanupInterval <= 0 {
		close(m.done)
		return
	}
	go m.sweepLoop()
}

// Stop halts the sweep and closes the backing. Safe to call more than once,
// or without a prior Start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backing != nil {
		if err := m.backing.Close(); err != nil {
			m.logger.Warn("closing durable backing", zap.Error(err))
		}
		m.backing = nil
	}
}

func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if purged := m.store.Sweep(); purged > 0 {
				m.logger.Debug("swept expired entries", zap.Int("purged", purged))
			}
			if backing := m.currentBacking(); backing != nil {
				if _, err := backing.Purge(m.staleMultiplier); err != nil {
					m.degrade("backing purge failed", err)
				}
			}
		}
	}
}

// Sweep runs one synchronous expiry pass over the in-memory store.
func (m *Manager) Sweep() int {
	return m.store.Sweep()
}

// Stats is a point-in-time view of cache health.
type Stats struct {
	Counters        Counters                    `json:"counters"`
	EntriesByCat    map[models.ScanCategory]int `json:"entries_by_category"`
	TotalEntries    int                         `json:"total_entries"`
	AvgRemainingTTL time.Duration               `json:"avg_remaining_ttl"`
	Degraded        bool                        `json:"degraded"`
}

// GetStats returns hit/miss/eviction/expiration counters, live entry counts
// per category, and the average remaining TTL across live entries.
func (m *Manager) GetStats() Stats {
	counters, counts, avg := m.store.snapshot()
	total := 0
	for _, n := range counts {
		total += n
	}

	m.mu.Lock()
	degraded := m.degraded
	m.mu.Unlock()

	return Stats{
		Counters:        counters,
		EntriesByCat:    counts,
		TotalEntries:    total,
		AvgRemainingTTL: avg,
		Degraded:        degraded,
	}
}

// Degraded reports whether the durable backing has been abandoned.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

func (m *Manager) currentBacking() *Backing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backing
}

// degrade logs the first backing failure and drops to memory-only for the
// rest of the process lifetime.
func (m *Manager) degrade(msg string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.degraded {
		return
	}
	m.degraded = true
	m.logger.Warn(msg+", degrading to memory-only cache", zap.Error(err))
	if m.backing != nil {
		_ = m.backing.Close()
		m.backing = nil
	}
}
