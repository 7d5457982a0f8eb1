package cache

import "time"

// pickVictim chooses the next entry to evict under capacity pressure.
// Ties break by insertion order, oldest first.
func pickVictim(strategy Strategy, entries map[string]*entry, now time.Time) *entry {
	if len(entries) == 0 {
		return nil
	}
	switch strategy {
	case LFU:
		return leastFrequent(entries)
	case TTL:
		if e := firstExpired(entries, now); e != nil {
			return e
		}
		return oldestCreated(entries)
	case Adaptive:
		return coldestLargest(entries, now)
	default:
		return leastRecent(entries)
	}
}

func leastRecent(entries map[string]*entry) *entry {
	var victim *entry
	for _, e := range entries {
		if victim == nil ||
			e.lastAccessed.Before(victim.lastAccessed) ||
			(e.lastAccessed.Equal(victim.lastAccessed) && e.seq < victim.seq) {
			victim = e
		}
	}
	return victim
}

func leastFrequent(entries map[string]*entry) *entry {
	var victim *entry
	for _, e := range entries {
		if victim == nil ||
			e.accessCount < victim.accessCount ||
			(e.accessCount == victim.accessCount && e.seq < victim.seq) {
			victim = e
		}
	}
	return victim
}

func firstExpired(entries map[string]*entry, now time.Time) *entry {
	var victim *entry
	for _, e := range entries {
		if !e.expired(now) {
			continue
		}
		if victim == nil || e.seq < victim.seq {
			victim = e
		}
	}
	return victim
}

func oldestCreated(entries map[string]*entry) *entry {
	var victim *entry
	for _, e := range entries {
		if victim == nil ||
			e.createdAt.Before(victim.createdAt) ||
			(e.createdAt.Equal(victim.createdAt) && e.seq < victim.seq) {
			victim = e
		}
	}
	return victim
}

// coldestLargest scores entries by size times staleness, preferring the
// biggest and least recently touched.
func coldestLargest(entries map[string]*entry, now time.Time) *entry {
	var victim *entry
	var victimScore float64
	for _, e := range entries {
		staleness := now.Sub(e.lastAccessed).Seconds()
		if staleness < 1 {
			staleness = 1
		}
		score := float64(e.size) * staleness
		if victim == nil || score > victimScore ||
			(score == victimScore && e.seq < victim.seq) {
			victim = e
			victimScore = score
		}
	}
	return victim
}
