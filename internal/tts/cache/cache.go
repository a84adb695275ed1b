// Package cache stores synthesized waveforms under a capacity bound with
// least-recently-used eviction and a fixed time-to-live.
package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Defaults for the synthesis cache.
const (
	DefaultCapacity = 50
	DefaultTTL      = time.Hour
)

var (
	// ErrInvalidCapacity is returned when the capacity is not positive.
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
	// ErrInvalidTTL is returned when the TTL is not positive.
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)

// Key builds the cache key for a normalized text, a voice file name and a
// speed. Speed is formatted at full precision; no rounding is applied.
func Key(normalizedText, voiceFileName string, speed float32) string {
	return fmt.Sprintf("%s:%s:%v", normalizedText, voiceFileName, speed)
}

type entry struct {
	waveform []float32
	inserted time.Time
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Expired   uint64
	Evictions uint64
	Size      int
}

// Cache is safe for concurrent use. Expired entries are removed lazily when
// they are looked up.
type Cache struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[string, entry]
	ttl   time.Duration
	clock func() time.Time
	stats Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New creates a cache holding at most capacity entries for at most ttl.
func New(capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}

	c := &Cache{
		ttl:   ttl,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	lru, err := simplelru.NewLRU[string, entry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	c.lru = lru

	return c, nil
}

// Get returns a copy of the waveform stored under key if it is younger than
// the TTL. An expired entry is removed and reported as a miss.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++

		return nil, false
	}

	if c.clock().Sub(cached.inserted) >= c.ttl {
		c.lru.Remove(key)
		c.stats.Expired++
		c.stats.Misses++

		return nil, false
	}

	c.stats.Hits++

	return slices.Clone(cached.waveform), true
}

// Put stores a copy of waveform under key, evicting the least recently used
// entry when the cache is full.
func (c *Cache) Put(key string, waveform []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.lru.Add(key, entry{waveform: slices.Clone(waveform), inserted: c.clock()})
	if evicted {
		c.stats.Evictions++
	}
}

// Stats returns a snapshot of the counters. Size includes expired entries
// not yet looked up.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.stats
	snapshot.Size = c.lru.Len()

	return snapshot
}
