package rudder

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// cacheShardCount is the number of independent shards. Keys are distributed
// by FNV-1a hash so a slow recompute or invalidation on one key does not
// stall reads of unrelated keys.
const cacheShardCount = 16

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
	Entries int
}

// cacheEntry is one derived value with its expiry metadata.
type cacheEntry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	hits      uint64
}

// expired reports whether the entry's TTL has passed at now.
func (e *cacheEntry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.After(e.createdAt.Add(e.ttl))
}

// cacheShard holds a slice of the key space under its own lock. epochs
// counts invalidations per key, and gen counts whole-shard wipes; together
// they fence out stores from computes that started before an invalidation.
type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	epochs  map[string]uint64
	gen     uint64
}

// cache is a TTL-keyed store of values derived from the current snapshot.
// Expired entries are dropped lazily on read and actively by the manager's
// background sweep, which bounds memory even for keys that are never read
// again.
type cache struct {
	shards     [cacheShardCount]*cacheShard
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	clock      clockz.Clock

	hits   atomic.Uint64
	misses atomic.Uint64
}

// newCache creates a cache with the given default TTL and per-key overrides.
func newCache(defaultTTL time.Duration, ttls map[string]time.Duration, clock clockz.Clock) *cache {
	c := &cache{
		defaultTTL: defaultTTL,
		ttls:       ttls,
		clock:      clock,
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{
			entries: make(map[string]*cacheEntry),
			epochs:  make(map[string]uint64),
		}
	}
	return c
}

// shard returns the shard owning a key.
func (c *cache) shard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShardCount]
}

// ttl returns the TTL applied to a key: the per-key override if present,
// else the default.
func (c *cache) ttl(key string) time.Duration {
	if d, ok := c.ttls[key]; ok {
		return d
	}
	return c.defaultTTL
}

// get returns the cached value for key if present and unexpired, counting a
// hit. Otherwise it invokes compute, stores the result with the key's TTL,
// counts a miss, and returns the computed value. The returned bool reports
// whether the read was a hit.
//
// compute runs outside the shard lock; two concurrent misses for the same
// key may both compute, with the later store winning. The key's epoch is
// read before compute and re-checked before the store, so a compute that
// overlaps an invalidation returns its value but is never cached: the value
// may derive from a snapshot the invalidation just superseded.
func (c *cache) get(key string, compute func() (any, error)) (any, bool, error) {
	s := c.shard(key)
	now := c.clock.Now()

	s.mu.RLock()
	entry, ok := s.entries[key]
	epoch := s.epochs[key]
	gen := s.gen
	s.mu.RUnlock()

	if ok && !entry.expired(now) {
		c.hits.Add(1)
		s.mu.Lock()
		entry.hits++
		s.mu.Unlock()
		return entry.value, true, nil
	}

	value, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.misses.Add(1)

	s.mu.Lock()
	if s.epochs[key] == epoch && s.gen == gen {
		s.entries[key] = &cacheEntry{
			value:     value,
			createdAt: now,
			ttl:       c.ttl(key),
		}
	}
	s.mu.Unlock()

	return value, false, nil
}

// invalidate removes a key immediately and bumps its epoch so in-flight
// computes for the key cannot store afterwards. Returns ErrUnknownCacheKey
// if the key is not cached.
func (c *cache) invalidate(key string) error {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epochs[key]++
	if _, ok := s.entries[key]; !ok {
		return ErrUnknownCacheKey
	}
	delete(s.entries, key)
	return nil
}

// invalidateAll removes every entry and returns the number removed.
func (c *cache) invalidateAll() int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		removed += len(s.entries)
		s.entries = make(map[string]*cacheEntry)
		s.epochs = make(map[string]uint64)
		s.gen++
		s.mu.Unlock()
	}
	return removed
}

// sweep removes all expired entries and returns the number removed. Run on
// a fixed interval by the manager, independent of read traffic.
func (c *cache) sweep() int {
	now := c.clock.Now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.expired(now) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// stats returns a snapshot of hit/miss counters and entry count.
func (c *cache) stats() Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	for _, s := range c.shards {
		s.mu.RLock()
		st.Entries += len(s.entries)
		s.mu.RUnlock()
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
