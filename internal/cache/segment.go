package cache

import (
	"math"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// SegmentConfig bounds a segment.
type SegmentConfig struct {
	MaxSize    int
	DefaultTTL time.Duration
}

// Stats is a point-in-time view of a segment's counters.
type Stats struct {
	Size       int     `json:"size"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hit_rate"` // percent, two decimals
	MaxSize    int     `json:"max_size"`
	DefaultTTL string  `json:"default_ttl"`
}

// Segment is a bounded TTL map. When a new key would push it past MaxSize,
// the entry with the earliest expiry is evicted first (ties go to the
// smallest key). This is soonest-to-expire eviction, not LRU: an entry that
// is still live can be dropped while older-but-longer-lived entries stay.
//
// Expired entries are only removed when read.
type Segment struct {
	name       string
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	mu     sync.Mutex
	items  map[string]entry
	hits   uint64
	misses uint64
	// gen is bumped by Clear so loads started earlier cannot write back.
	gen uint64
}

func newSegment(name string, cfg SegmentConfig, now func() time.Time) *Segment {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &Segment{
		name:       name,
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        now,
		items:      make(map[string]entry),
	}
}

// Get returns the value for key if present and not expired. The returned
// slice is shared with the segment and must not be modified.
func (s *Segment) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.items, key)
		s.misses++
		return nil, false
	}

	s.hits++
	return e.value, true
}

// Set stores a copy of value. ttl <= 0 uses the segment default. It returns
// the key evicted to make room, if any.
func (s *Segment) Set(key string, value []byte, ttl time.Duration) (evicted string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value, ttl)
}

// SetIfGeneration is Set, but only while the segment is still at generation
// gen. stored is false when a Clear happened in between.
func (s *Segment) SetIfGeneration(key string, value []byte, ttl time.Duration, gen uint64) (evicted string, ok, stored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return "", false, false
	}
	evicted, ok = s.setLocked(key, value, ttl)
	return evicted, ok, true
}

// Generation returns the number of times the segment has been cleared.
func (s *Segment) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// setLocked must be called with mu held.
func (s *Segment) setLocked(key string, value []byte, ttl time.Duration) (evicted string, ok bool) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	if _, exists := s.items[key]; !exists && len(s.items) >= s.maxSize {
		evicted, ok = s.soonestExpiring()
		if ok {
			delete(s.items, evicted)
		}
	}

	s.items[key] = entry{
		value:     valueCopy,
		expiresAt: s.now().Add(ttl),
	}
	return evicted, ok
}

// soonestExpiring must be called with mu held.
func (s *Segment) soonestExpiring() (string, bool) {
	var (
		victim string
		expiry time.Time
		found  bool
	)
	for k, e := range s.items {
		if !found || e.expiresAt.Before(expiry) || (e.expiresAt.Equal(expiry) && k < victim) {
			victim, expiry, found = k, e.expiresAt, true
		}
	}
	return victim, found
}

// Delete removes a single key.
func (s *Segment) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Clear removes every entry and resets the hit and miss counters.
func (s *Segment) Clear() {
	s.mu.Lock()
	s.items = make(map[string]entry)
	s.hits, s.misses = 0, 0
	s.gen++
	s.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet read.
func (s *Segment) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Segment) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rate float64
	if total := s.hits + s.misses; total > 0 {
		rate = math.Round(float64(s.hits)/float64(total)*100*100) / 100
	}
	return Stats{
		Size:       len(s.items),
		Hits:       s.hits,
		Misses:     s.misses,
		HitRate:    rate,
		MaxSize:    s.maxSize,
		DefaultTTL: s.defaultTTL.String(),
	}
}
