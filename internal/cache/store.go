// Package cache provides the short-lived fact cache: a TTL+LRU in-memory
// store wrapped by a category-aware manager, with an optional SQLite
// durable backing that degrades silently to memory-only on failure.
package cache

import (
	"sync"
	"time"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// entry is one cached value. Access bookkeeping feeds LRU eviction.
type entry struct {
	key         string
	value       any
	category    models.ScanCategory
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time
}

// expired reports whether the entry is past its TTL. A TTL of zero or less
// means the entry was dead on arrival.
func (e *entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return true
	}
	return now.Sub(e.createdAt) > e.ttl
}

// remaining returns the time left before expiry, never negative.
func (e *entry) remaining(now time.Time) time.Duration {
	left := e.ttl - now.Sub(e.createdAt)
	if left < 0 {
		return 0
	}
	return left
}

// Store is the generic TTL+LRU key/value store. One mutex guards all
// read/modify operations; the manager's background sweep takes the same
// lock. Eviction scans for the single least-recently-accessed entry, an
// O(n) walk that is fine at the configured capacities.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	nowFunc func() time.Time
}

// NewStore creates a store that holds at most maxEntries live entries.
func NewStore(maxEntries int) *Store {
	return &Store{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// storeKey namespaces keys by category so the same hostname can carry
// independently stale facts per category.
func storeKey(key string, category models.ScanCategory) string {
	return string(category) + "\x00" + key
}

// Get returns the live value for (key, category). Expired entries are
// removed on read and count as misses.
func (s *Store) Get(key string, category models.ScanCategory) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	sk := storeKey(key, category)
	e, ok := s.entries[sk]
	if !ok {
		s.misses++
		metricMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}
	if e.expired(now) {
		delete(s.entries, sk)
		s.expirations++
		s.misses++
		metricExpirations.WithLabelValues(string(category)).Inc()
		metricMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}

	e.accessCount++
	e.lastAccess = now
	s.hits++
	metricHits.WithLabelValues(string(category)).Inc()
	return e.value, true
}

// Set stores value under (key, category) with the given TTL, evicting the
// least-recently-accessed entry first when the store is at capacity.
func (s *Store) Set(key string, value any, category models.ScanCategory, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	sk := storeKey(key, category)

	if _, exists := s.entries[sk]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLRULocked()
	}

	s.entries[sk] = &entry{
		key:        key,
		value:      value,
		category:   category,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	}
}

// Delete removes (key, category) if present.
func (s *Store) Delete(key string, category models.ScanCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, storeKey(key, category))
}

// Clear drops every entry of the given category, or everything when the
// category is empty.
func (s *Store) Clear(category models.ScanCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		s.entries = make(map[string]*entry)
		return
	}
	for sk, e := range s.entries {
		if e.category == category {
			delete(s.entries, sk)
		}
	}
}

// Sweep removes every expired entry and returns how many were purged.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	purged := 0
	for sk, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, sk)
			s.expirations++
			metricExpirations.WithLabelValues(string(e.category)).Inc()
			purged++
		}
	}
	return purged
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLRULocked removes exactly the least-recently-accessed entry.
// Caller holds the lock.
func (s *Store) evictLRULocked() {
	var victim string
	var oldest time.Time
	var category models.ScanCategory
	for sk, e := range s.entries {
		if victim == "" || e.lastAccess.Before(oldest) {
			victim = sk
			oldest = e.lastAccess
			category = e.category
		}
	}
	if victim != "" {
		delete(s.entries, victim)
		s.evictions++
		metricEvictions.WithLabelValues(string(category)).Inc()
	}
}

// Counters is a snapshot of the store's aggregate counters.
type Counters struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// snapshot gathers per-category counts and the average remaining TTL of
// live entries.
func (s *Store) snapshot() (Counters, map[models.ScanCategory]int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	counts := make(map[models.ScanCategory]int)
	var totalRemaining time.Duration
	live := 0
	for _, e := range s.entries {
		if e.expired(now) {
			continue
		}
		counts[e.category]++
		totalRemaining += e.remaining(now)
		live++
	}

	var avg time.Duration
	if live > 0 {
		avg = totalRemaining / time.Duration(live)
	}
	return Counters{
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}, counts, avg
}
