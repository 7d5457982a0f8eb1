// Package cache is a capacity-bounded store for expensive reusable
// artifacts, primarily loaded models. Eviction runs synchronously on any
// put that would exceed capacity and periodically for TTL expiry and
// memory pressure.
package cache

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Strategy selects the eviction policy.
type Strategy string

const (
	LRU      Strategy = "lru"
	LFU      Strategy = "lfu"
	TTL      Strategy = "ttl"
	Adaptive Strategy = "adaptive"
)

// ParseStrategy maps a config string onto a Strategy, defaulting to LRU.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case LRU, LFU, TTL, Adaptive:
		return Strategy(s), true
	case "":
		return LRU, true
	}
	return LRU, false
}

// ErrTooLarge is returned when a payload exceeds the whole capacity.
var ErrTooLarge = errors.New("payload larger than cache capacity")

type entry struct {
	key          string
	payload      any
	size         int64
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	ttl          time.Duration
	seq          uint64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// Config tunes a cache instance.
type Config struct {
	Capacity      int64
	Strategy      Strategy
	SweepInterval time.Duration
	// Memory watermarks in bytes of process heap. Zero disables the
	// adaptive pressure path.
	MemoryHighWater uint64
	MemoryLowWater  uint64
}

// Stats is the aggregate view returned by cache.status.
type Stats struct {
	Entries   int      `json:"entries"`
	SizeBytes int64    `json:"size_bytes"`
	Capacity  int64    `json:"capacity"`
	Strategy  Strategy `json:"strategy"`
	Hits      int64    `json:"hits"`
	Misses    int64    `json:"misses"`
	Evictions int64    `json:"evictions"`
}

// Cache is safe for concurrent use; a single lock serializes mutations.
type Cache struct {
	cfg Config
	log zerolog.Logger

	// heapUsed is injectable for tests; defaults to runtime heap alloc.
	heapUsed func() uint64

	mu        sync.RWMutex
	entries   map[string]*entry
	totalSize int64
	seq       uint64
	hits      int64
	misses    int64
	evictions int64
}

// New builds a cache. Capacity must be positive.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = LRU
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Cache{
		cfg:      cfg,
		log:      logger,
		heapUsed: defaultHeapUsed,
		entries:  make(map[string]*entry),
	}, nil
}

func defaultHeapUsed() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Get returns the payload for key, refreshing access metadata. Expired
// entries report absent and are dropped in place.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	now := time.Now()
	if e.expired(now) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	e.lastAccessed = now
	e.accessCount++
	c.hits++
	return e.payload, true
}

// Put stores a payload, evicting as needed so total size stays within
// capacity. Replacing an existing key refreshes all metadata atomically.
func (c *Cache) Put(key string, payload any, size int64, ttl time.Duration) error {
	if size < 0 {
		return fmt.Errorf("negative size %d for key %q", size, key)
	}
	if size > c.cfg.Capacity {
		return fmt.Errorf("key %q (%d bytes): %w", key, size, ErrTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if old, ok := c.entries[key]; ok {
		c.totalSize -= old.size
		delete(c.entries, key)
	}

	for c.totalSize+size > c.cfg.Capacity {
		victim := c.victimLocked(now)
		if victim == nil {
			break
		}
		c.removeLocked(victim)
		c.evictions++
		c.log.Debug().
			Str("component", "cache").
			Str("key", victim.key).
			Int64("size", victim.size).
			Msg("evicted")
	}

	c.seq++
	c.entries[key] = &entry{
		key:          key,
		payload:      payload,
		size:         size,
		createdAt:    now,
		lastAccessed: now,
		ttl:          ttl,
		seq:          c.seq,
	}
	c.totalSize += size
	return nil
}

// Invalidate drops a key explicitly.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// Stats snapshots aggregate counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:   len(c.entries),
		SizeBytes: c.totalSize,
		Capacity:  c.cfg.Capacity,
		Strategy:  c.cfg.Strategy,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Run drives the background sweep until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(time.Now())
		}
	}
}

// Sweep drops expired entries and, when the heap crosses the high-water
// mark, evicts largest-and-coldest entries down to the low-water mark.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			c.evictions++
		}
	}

	if c.cfg.MemoryHighWater == 0 || c.heapUsed() < c.cfg.MemoryHighWater {
		return
	}

	low := c.cfg.MemoryLowWater
	if low == 0 || low > c.cfg.MemoryHighWater {
		low = c.cfg.MemoryHighWater / 2
	}
	freed := uint64(0)
	need := c.cfg.MemoryHighWater - low
	for freed < need && len(c.entries) > 0 {
		victim := coldestLargest(c.entries, now)
		if victim == nil {
			return
		}
		freed += uint64(victim.size)
		c.removeLocked(victim)
		c.evictions++
		c.log.Info().
			Str("component", "cache").
			Str("key", victim.key).
			Int64("size", victim.size).
			Msg("evicted under memory pressure")
	}
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.totalSize -= e.size
}

func (c *Cache) victimLocked(now time.Time) *entry {
	return pickVictim(c.cfg.Strategy, c.entries, now)
}
