// Package cache is the proxy's in-memory LRU store of whole responses.
//
// Lookups share a read lock and copy the content out. Promoting a hit to
// most-recently-used happens afterwards under the write lock, which also
// serializes inserts and evictions. [sync.RWMutex] blocks new readers once a
// writer is waiting, so a steady stream of lookups cannot starve inserts.
package cache

import (
	"bytes"
	"log/slog"
	"sync"

	"caching-proxy/lib/ds/list"
)

const (
	DefaultMaxCacheSize  = 1049000
	DefaultMaxObjectSize = 102400
)

type Options struct {
	// MaxCacheSize bounds the total bytes of resident content.
	MaxCacheSize uint
	// MaxObjectSize bounds a single entry. Larger contents are never stored.
	// It is capped at MaxCacheSize.
	MaxObjectSize uint

	Metrics *Metrics
	Logger  *slog.Logger
}

type entry struct {
	key     string
	content []byte
}

func (e entry) size() uint { return uint(len(e.content)) }

type Cache struct {
	mu sync.RWMutex

	// front is least, back is most recently used.
	recency *list.List[entry]
	index   map[string]list.Handle
	remain  uint

	stats stats

	maxCacheSize  uint
	maxObjectSize uint

	metrics *Metrics
	logger  *slog.Logger
}

func New(opts Options) *Cache {
	if opts.MaxCacheSize == 0 {
		opts.MaxCacheSize = DefaultMaxCacheSize
	}
	if opts.MaxObjectSize == 0 {
		opts.MaxObjectSize = DefaultMaxObjectSize
	}
	// An object larger than the whole cache could never be resident.
	opts.MaxObjectSize = min(opts.MaxObjectSize, opts.MaxCacheSize)
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{
		recency:       list.New[entry](0),
		index:         make(map[string]list.Handle),
		remain:        opts.MaxCacheSize,
		maxCacheSize:  opts.MaxCacheSize,
		maxObjectSize: opts.MaxObjectSize,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

// MaxObjectSize is the largest content [Cache.Insert] accepts.
func (c *Cache) MaxObjectSize() uint { return c.maxObjectSize }

// Lookup returns a copy of the content stored under key.
// A hit makes key the most recently used entry.
func (c *Cache) Lookup(key string) ([]byte, bool) {
	c.mu.RLock()
	h, ok := c.index[key]
	var content []byte
	if ok {
		e, _ := c.recency.Get(h)
		content = bytes.Clone(e.content)
	}
	c.mu.RUnlock()

	if !ok {
		c.stats.misses.Add(1)
		c.metrics.miss()
		return nil, false
	}

	c.stats.hits.Add(1)
	c.metrics.hit()

	// The entry may have been evicted or replaced in between,
	// in which case the handle is stale and nothing moves.
	c.mu.Lock()
	c.recency.MoveToBack(h)
	c.mu.Unlock()

	return content, true
}

// Insert stores content under key, evicting least recently used entries
// until it fits. It returns false when content exceeds the object size limit.
// An existing entry under the same key is replaced.
func (c *Cache) Insert(key string, content []byte) bool {
	size := uint(len(content))
	if size > c.maxObjectSize {
		c.stats.rejections.Add(1)
		c.metrics.reject()
		c.logger.Debug("object too large to cache", "key", key, "size", size)
		return false
	}

	e := entry{key: key, content: bytes.Clone(content)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.index[key]; ok {
		c.removeLocked(h)
	}

	for c.remain < size && c.recency.Len() > 0 {
		c.evictOne()
	}

	c.index[key] = c.recency.PushBack(e)
	c.remain -= size

	c.stats.inserts.Add(1)
	c.metrics.insert(c.recency.Len(), c.maxCacheSize-c.remain)

	return true
}

// evictOne removes the least recently used entry. No-op on empty cache.
// c.mu must be held for writing.
func (c *Cache) evictOne() {
	h, e, ok := c.recency.Front()
	if !ok {
		return
	}

	c.removeLocked(h)

	c.stats.evictions.Add(1)
	c.metrics.evict(c.recency.Len(), c.maxCacheSize-c.remain)
	c.logger.Debug("evicted", "key", e.key, "size", e.size())
}

func (c *Cache) removeLocked(h list.Handle) {
	e, ok := c.recency.Remove(h)
	if !ok {
		return
	}
	delete(c.index, e.key)
	c.remain += e.size()
}

// Len returns the number of resident entries.
func (c *Cache) Len() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len()
}

// Size returns the resident bytes.
func (c *Cache) Size() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxCacheSize - c.remain
}

// Remaining returns the unused byte budget.
func (c *Cache) Remaining() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remain
}

// Keys lists resident keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, c.recency.Len())
	c.recency.Each(func(_ list.Handle, e entry) bool {
		keys = append(keys, e.key)
		return true
	})
	return keys
}
