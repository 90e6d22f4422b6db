package cache

import "sync/atomic"

type stats struct {
	hits, misses, inserts, rejections, evictions atomic.Uint64
}

type Stats struct {
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Inserts    uint64 `json:"inserts"`
	Rejections uint64 `json:"rejections"`
	Evictions  uint64 `json:"evictions"`

	Entries       uint `json:"entries"`
	Size          uint `json:"size"`
	MaxCacheSize  uint `json:"max_cache_size"`
	MaxObjectSize uint `json:"max_object_size"`
}

// Stats returns a snapshot of the cache counters and occupancy.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries, size := c.recency.Len(), c.maxCacheSize-c.remain
	c.mu.RUnlock()

	return Stats{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Inserts:       c.stats.inserts.Load(),
		Rejections:    c.stats.rejections.Load(),
		Evictions:     c.stats.evictions.Load(),
		Entries:       entries,
		Size:          size,
		MaxCacheSize:  c.maxCacheSize,
		MaxObjectSize: c.maxObjectSize,
	}
}
