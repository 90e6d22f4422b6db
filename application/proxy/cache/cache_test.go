package cache

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite

	cache *Cache
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) SetupTest() {
	s.cache = New(Options{MaxCacheSize: 100, MaxObjectSize: 40})
}

func blob(n int) []byte { return bytes.Repeat([]byte{'x'}, n) }

func (s *CacheTestSuite) TestDefaults() {
	c := New(Options{})
	s.Equal(uint(DefaultMaxCacheSize), c.Remaining())
	s.Equal(uint(DefaultMaxObjectSize), c.MaxObjectSize())
}

func (s *CacheTestSuite) TestObjectLimitCappedByCacheSize() {
	c := New(Options{MaxCacheSize: 10, MaxObjectSize: 100})
	s.Equal(uint(10), c.MaxObjectSize())

	s.False(c.Insert("k", blob(50)))
	s.Equal(uint(0), c.Size())
	s.Equal(uint(10), c.Remaining())

	s.True(c.Insert("k", blob(10)))
	s.Equal(uint(10), c.Size())
	s.Equal(uint(0), c.Remaining())
}

func (s *CacheTestSuite) TestMiss() {
	content, ok := s.cache.Lookup("a:80/")
	s.False(ok)
	s.Nil(content)
	s.Equal(uint64(1), s.cache.Stats().Misses)
}

func (s *CacheTestSuite) TestInsertLookup() {
	s.Require().True(s.cache.Insert("a:80/", []byte("hello")))

	content, ok := s.cache.Lookup("a:80/")
	s.Require().True(ok)
	s.Equal("hello", string(content))

	s.Equal(uint(1), s.cache.Len())
	s.Equal(uint(5), s.cache.Size())
	s.Equal(uint(95), s.cache.Remaining())
}

func (s *CacheTestSuite) TestLookupReturnsCopy() {
	src := []byte("hello")
	s.Require().True(s.cache.Insert("k", src))
	src[0] = 'j'

	content, ok := s.cache.Lookup("k")
	s.Require().True(ok)
	content[1] = 'a'

	again, ok := s.cache.Lookup("k")
	s.Require().True(ok)
	s.Equal("hello", string(again))
}

func (s *CacheTestSuite) TestEmptyContent() {
	s.True(s.cache.Insert("k", nil))

	content, ok := s.cache.Lookup("k")
	s.True(ok)
	s.Empty(content)
	s.Equal(uint(0), s.cache.Size())
}

func (s *CacheTestSuite) TestOversizedNeverRetrievable() {
	s.False(s.cache.Insert("big", blob(41)))

	_, ok := s.cache.Lookup("big")
	s.False(ok)
	s.Equal(uint(0), s.cache.Len())
	s.Equal(uint64(1), s.cache.Stats().Rejections)

	// Exactly at the limit is fine.
	s.True(s.cache.Insert("edge", blob(40)))
}

func (s *CacheTestSuite) TestEvictsOldestFirst() {
	// 40 + 40 + 21 = 101, one byte over capacity.
	s.Require().True(s.cache.Insert("A", blob(40)))
	s.Require().True(s.cache.Insert("B", blob(40)))
	s.Require().True(s.cache.Insert("C", blob(21)))

	_, ok := s.cache.Lookup("A")
	s.False(ok)
	s.Equal([]string{"B", "C"}, s.cache.Keys())
	s.Equal(uint(61), s.cache.Size())
	s.Equal(uint64(1), s.cache.Stats().Evictions)
}

func (s *CacheTestSuite) TestHitRefreshesRecency() {
	s.Require().True(s.cache.Insert("A", blob(40)))
	s.Require().True(s.cache.Insert("B", blob(40)))

	_, ok := s.cache.Lookup("A")
	s.Require().True(ok)
	s.Equal([]string{"B", "A"}, s.cache.Keys())

	s.Require().True(s.cache.Insert("C", blob(21)))
	s.Equal([]string{"A", "C"}, s.cache.Keys())
}

func (s *CacheTestSuite) TestRecencyFollowsReadOrder() {
	for _, k := range []string{"A", "B", "C"} {
		s.Require().True(s.cache.Insert(k, blob(1)))
	}

	for _, k := range []string{"A", "B", "A"} {
		_, ok := s.cache.Lookup(k)
		s.Require().True(ok)
	}

	s.Equal([]string{"C", "B", "A"}, s.cache.Keys())
}

func (s *CacheTestSuite) TestMissLeavesOrder() {
	s.Require().True(s.cache.Insert("A", blob(1)))
	s.Require().True(s.cache.Insert("B", blob(1)))

	_, ok := s.cache.Lookup("Z")
	s.False(ok)
	s.Equal([]string{"A", "B"}, s.cache.Keys())
}

func (s *CacheTestSuite) TestDuplicateKeyReplaces() {
	s.Require().True(s.cache.Insert("A", blob(10)))
	s.Require().True(s.cache.Insert("B", blob(10)))
	s.Require().True(s.cache.Insert("A", []byte("new")))

	content, ok := s.cache.Lookup("A")
	s.Require().True(ok)
	s.Equal("new", string(content))

	s.Equal([]string{"B", "A"}, s.cache.Keys())
	s.Equal(uint(13), s.cache.Size())
	s.Equal(uint(2), s.cache.Len())
}

func (s *CacheTestSuite) TestDuplicateKeyFreesOwnBudget() {
	// Replacing A must not evict B when the old A's bytes make room.
	s.Require().True(s.cache.Insert("A", blob(40)))
	s.Require().True(s.cache.Insert("B", blob(40)))
	s.Require().True(s.cache.Insert("A", blob(40)))

	s.Equal([]string{"B", "A"}, s.cache.Keys())
	s.Equal(uint64(0), s.cache.Stats().Evictions)
}

func (s *CacheTestSuite) TestEvictOneOnEmpty() {
	s.cache.mu.Lock()
	s.cache.evictOne()
	s.cache.mu.Unlock()

	s.Equal(uint(100), s.cache.Remaining())
}

func (s *CacheTestSuite) TestStats() {
	s.Require().True(s.cache.Insert("A", blob(40)))
	s.Require().True(s.cache.Insert("B", blob(40)))
	s.Require().True(s.cache.Insert("C", blob(40)))
	s.Require().False(s.cache.Insert("D", blob(41)))
	s.cache.Lookup("C")
	s.cache.Lookup("A")

	s.Equal(Stats{
		Hits:          1,
		Misses:        1,
		Inserts:       3,
		Rejections:    1,
		Evictions:     1,
		Entries:       2,
		Size:          80,
		MaxCacheSize:  100,
		MaxObjectSize: 40,
	}, s.cache.Stats())
}

func TestCapacityNeverExceeded(t *testing.T) {
	const capacity = 1000

	c := New(Options{MaxCacheSize: capacity, MaxObjectSize: 300})
	rng := rand.New(rand.NewSource(1))

	var model []string // LRU to MRU
	sizes := make(map[string]int)

	for i := range 500 {
		key := fmt.Sprintf("k%d", rng.Intn(40))
		if rng.Intn(3) == 0 {
			if _, ok := c.Lookup(key); ok {
				model = moveToBack(model, key)
			}
			continue
		}

		size := rng.Intn(300) + 1
		require.True(t, c.Insert(key, blob(size)), "insert %d", i)

		if _, ok := sizes[key]; ok {
			model = remove(model, key)
		}
		total := size
		for _, k := range model {
			total += sizes[k]
		}
		for total > capacity {
			total -= sizes[model[0]]
			delete(sizes, model[0])
			model = model[1:]
		}
		model = append(model, key)
		sizes[key] = size

		require.LessOrEqual(t, c.Size(), uint(capacity))
		require.Equal(t, model, c.Keys(), "insert %d", i)
	}
}

func moveToBack(keys []string, key string) []string {
	return append(remove(keys, key), key)
}

func remove(keys []string, key string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Options{MaxCacheSize: 4096, MaxObjectSize: 512})

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 300 {
				key := fmt.Sprintf("k%d", (w*31+i)%64)
				c.Insert(key, []byte(strings.Repeat(key, 1+i%16)))
			}
		}()
	}
	for r := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 600 {
				key := fmt.Sprintf("k%d", (r*17+i)%64)
				if content, ok := c.Lookup(key); ok {
					assert.True(t, bytes.HasPrefix(content, []byte(key)))
				}
				if i%50 == 0 {
					assertConsistent(t, c)
				}
			}
		}()
	}
	wg.Wait()

	assertConsistent(t, c)
}

func assertConsistent(t *testing.T, c *Cache) {
	t.Helper()

	keys := c.Keys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		assert.False(t, seen[k], "key %q visited twice", k)
		seen[k] = true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	assert.Equal(t, len(c.index), int(c.recency.Len()))
	var size uint
	for k, h := range c.index {
		e, ok := c.recency.Get(h)
		if assert.True(t, ok, "stale handle for %q", k) {
			assert.Equal(t, k, e.key)
			size += e.size()
		}
	}
	assert.Equal(t, c.maxCacheSize-c.remain, size)
	assert.LessOrEqual(t, size, c.maxCacheSize)
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics("proxy", registry)

	c := New(Options{MaxCacheSize: 100, MaxObjectSize: 60, Metrics: metrics})

	require.True(t, c.Insert("A", blob(60)))
	require.True(t, c.Insert("B", blob(50)))
	require.False(t, c.Insert("C", blob(61)))
	c.Lookup("B")
	c.Lookup("A")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.misses))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.inserts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entries))
	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.bytes))

	n, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
