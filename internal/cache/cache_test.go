package cache

import (
	"errors"
	"testing"
	"time"

	"hark/internal/logging"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.Capacity == 0 {
		cfg.Capacity = 100
	}
	c, err := New(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func keys(c *Cache) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.entries))
	for k := range c.entries {
		out[k] = true
	}
	return out
}

func TestPutGetRoundtrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{})
	if err := c.Put("a", "payload", 10, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := c.Get("a")
	if !ok || got != "payload" {
		t.Fatalf("Get = (%v, %v), want (payload, true)", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 || stats.SizeBytes != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRejectsOversizedEntry(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 50})
	if err := c.Put("huge", nil, 51, 0); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if err := c.Put("exact", nil, 50, 0); err != nil {
		t.Fatalf("entry at exactly capacity should fit: %v", err)
	}
}

func TestCapacityInvariantUnderEviction(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 100, Strategy: LRU})
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		if err := c.Put(key, nil, 40, 0); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
		if stats := c.Stats(); stats.SizeBytes > stats.Capacity {
			t.Fatalf("size %d exceeds capacity %d after %s", stats.SizeBytes, stats.Capacity, key)
		}
	}

	stats := c.Stats()
	if stats.Entries != 2 || stats.Evictions != 3 {
		t.Fatalf("unexpected stats after churn: %+v", stats)
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 120, Strategy: LRU})
	for _, key := range []string{"a", "b", "c"} {
		if err := c.Put(key, nil, 40, 0); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	// Refresh "a" so "b" becomes the coldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	if err := c.Put("d", nil, 40, 0); err != nil {
		t.Fatalf("Put d failed: %v", err)
	}

	have := keys(c)
	if have["b"] || !have["a"] || !have["c"] || !have["d"] {
		t.Fatalf("LRU evicted wrong entry, kept %v", have)
	}
}

func TestLFUEvictsLeastFrequent(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 120, Strategy: LFU})
	for _, key := range []string{"a", "b", "c"} {
		if err := c.Put(key, nil, 40, 0); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}
	c.Get("a")
	c.Get("a")
	c.Get("b")

	if err := c.Put("d", nil, 40, 0); err != nil {
		t.Fatalf("Put d failed: %v", err)
	}

	have := keys(c)
	if have["c"] || !have["a"] || !have["b"] {
		t.Fatalf("LFU evicted wrong entry, kept %v", have)
	}
}

func TestTTLStrategyEvictsExpiredFirst(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 120, Strategy: TTL})
	if err := c.Put("short", nil, 40, time.Millisecond); err != nil {
		t.Fatalf("Put short failed: %v", err)
	}
	if err := c.Put("long", nil, 40, time.Hour); err != nil {
		t.Fatalf("Put long failed: %v", err)
	}
	if err := c.Put("forever", nil, 40, 0); err != nil {
		t.Fatalf("Put forever failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := c.Put("new", nil, 40, 0); err != nil {
		t.Fatalf("Put new failed: %v", err)
	}

	have := keys(c)
	if have["short"] || !have["long"] || !have["forever"] {
		t.Fatalf("TTL strategy evicted wrong entry, kept %v", have)
	}
}

func TestAdaptiveEvictsColdestLargest(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 100, Strategy: Adaptive})
	if err := c.Put("small", nil, 10, 0); err != nil {
		t.Fatalf("Put small failed: %v", err)
	}
	if err := c.Put("big", nil, 80, 0); err != nil {
		t.Fatalf("Put big failed: %v", err)
	}

	if err := c.Put("next", nil, 40, 0); err != nil {
		t.Fatalf("Put next failed: %v", err)
	}

	have := keys(c)
	if have["big"] || !have["small"] || !have["next"] {
		t.Fatalf("adaptive evicted wrong entry, kept %v", have)
	}
}

func TestExpiredEntryIsMissOnGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{})
	if err := c.Put("a", "v", 10, time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if stats := c.Stats(); stats.Entries != 0 || stats.SizeBytes != 0 {
		t.Fatalf("expired entry not dropped: %+v", stats)
	}
}

func TestReplaceRefreshesMetadata(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{Capacity: 100})
	if err := c.Put("a", "old", 60, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("a", "new", 80, 0); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, ok := c.Get("a")
	if !ok || got != "new" {
		t.Fatalf("Get = (%v, %v), want (new, true)", got, ok)
	}
	stats := c.Stats()
	if stats.Entries != 1 || stats.SizeBytes != 80 || stats.Evictions != 0 {
		t.Fatalf("replace should not evict: %+v", stats)
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{})
	if err := c.Put("a", nil, 10, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !c.Invalidate("a") {
		t.Fatal("expected Invalidate to report true")
	}
	if c.Invalidate("a") {
		t.Fatal("double Invalidate should report false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("invalidated key still present")
	}
}

func TestSweepDropsExpired(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{})
	if err := c.Put("short", nil, 10, time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("keep", nil, 10, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	c.Sweep(time.Now().Add(time.Second))

	have := keys(c)
	if have["short"] || !have["keep"] {
		t.Fatalf("sweep kept %v", have)
	}
}

func TestSweepEvictsUnderMemoryPressure(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{
		Capacity:        1000,
		MemoryHighWater: 100,
		MemoryLowWater:  50,
	})
	c.heapUsed = func() uint64 { return 200 }

	if err := c.Put("cold-big", nil, 60, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("small", nil, 5, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	c.Sweep(time.Now())

	have := keys(c)
	if have["cold-big"] {
		t.Fatalf("pressure sweep kept the largest entry, %v", have)
	}
	if !have["small"] {
		t.Fatalf("pressure sweep freed more than needed, %v", have)
	}
}

func TestSweepNoopBelowHighWater(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Config{
		Capacity:        1000,
		MemoryHighWater: 100,
		MemoryLowWater:  50,
	})
	c.heapUsed = func() uint64 { return 10 }

	if err := c.Put("a", nil, 60, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	c.Sweep(time.Now())

	if stats := c.Stats(); stats.Entries != 1 {
		t.Fatalf("sweep below high water should not evict: %+v", stats)
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"lru", "lfu", "ttl", "adaptive"} {
		if _, ok := ParseStrategy(name); !ok {
			t.Errorf("ParseStrategy(%q) rejected", name)
		}
	}
	if _, ok := ParseStrategy("mru"); ok {
		t.Error("ParseStrategy accepted unknown strategy")
	}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Capacity: 0}, logging.Nop()); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
