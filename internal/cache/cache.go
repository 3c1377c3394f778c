// Package cache is the in-process response cache: a set of named, bounded
// TTL segments shared by all request handlers.
package cache

import (
	"context"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a missing key.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Cache is the interface used by the handlers. Cache operations never fail
// the surrounding request: a problem inside the cache is reported as a miss.
type Cache interface {
	Get(ctx context.Context, segment, key string) ([]byte, bool)
	Set(ctx context.Context, segment, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, segment string)
	// GetOrLoad returns the cached value or calls load once for all
	// concurrent callers of the same key. hit reports whether the value came
	// from the cache. Load errors are returned and nothing is stored.
	GetOrLoad(ctx context.Context, segment, key string, ttl time.Duration, load LoadFunc) (value []byte, hit bool, err error)
	Stats(segment string) (Stats, bool)
	AllStats() map[string]Stats
}

type Option func(*ResponseCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// WithEvictionHook is called after an entry is evicted to make room.
func WithEvictionHook(fn func(segment, key string)) Option {
	return func(c *ResponseCache) { c.onEvict = fn }
}

// ResponseCache holds a fixed set of segments created at construction.
type ResponseCache struct {
	segments map[string]*Segment
	now      func() time.Time
	onEvict  func(segment, key string)
	group    singleflight.Group
}

var _ Cache = (*ResponseCache)(nil)

// New creates a cache with one segment per entry in segments.
func New(segments map[string]SegmentConfig, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		segments: make(map[string]*Segment, len(segments)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for name, cfg := range segments {
		c.segments[name] = newSegment(name, cfg, c.now)
	}
	return c
}

// Segment returns the named segment, or nil.
func (c *ResponseCache) Segment(name string) *Segment {
	return c.segments[name]
}

// Names lists the configured segments in sorted order.
func (c *ResponseCache) Names() []string {
	names := make([]string, 0, len(c.segments))
	for name := range c.segments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *ResponseCache) Get(_ context.Context, segment, key string) ([]byte, bool) {
	s, ok := c.segments[segment]
	if !ok {
		return nil, false
	}
	return s.Get(key)
}

func (c *ResponseCache) Set(_ context.Context, segment, key string, value []byte, ttl time.Duration) {
	s, ok := c.segments[segment]
	if !ok {
		return
	}
	if evicted, ok := s.Set(key, value, ttl); ok && c.onEvict != nil {
		c.onEvict(segment, evicted)
	}
}

func (c *ResponseCache) Invalidate(_ context.Context, segment string) {
	if s, ok := c.segments[segment]; ok {
		s.Clear()
	}
}

// GetOrLoad runs load without the caller's cancellation and stores its
// result only if the segment was not invalidated while it ran.
func (c *ResponseCache) GetOrLoad(ctx context.Context, segment, key string, ttl time.Duration, load LoadFunc) ([]byte, bool, error) {
	s, ok := c.segments[segment]
	if !ok {
		b, err := load(ctx)
		return b, false, err
	}
	if v, ok := s.Get(key); ok {
		return v, true, nil
	}

	// Callers arriving after an invalidation start a fresh load instead of
	// joining one that may have read pre-write data.
	gen := s.Generation()
	flight := segment + "\x00" + strconv.FormatUint(gen, 10) + "\x00" + key

	v, err, _ := c.group.Do(flight, func() (any, error) {
		b, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if evicted, ok, _ := s.SetIfGeneration(key, b, ttl, gen); ok && c.onEvict != nil {
			c.onEvict(segment, evicted)
		}
		return b, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

func (c *ResponseCache) Stats(segment string) (Stats, bool) {
	s, ok := c.segments[segment]
	if !ok {
		return Stats{}, false
	}
	return s.Stats(), true
}

func (c *ResponseCache) AllStats() map[string]Stats {
	out := make(map[string]Stats, len(c.segments))
	for name, s := range c.segments {
		out[name] = s.Stats()
	}
	return out
}
