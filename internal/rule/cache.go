package rule

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

const (
	cacheTree   = "tree"
	cacheResult = "result"
)

// lruCache is a bounded least-recently-used cache safe for concurrent use.
type lruCache struct {
	name string
	rec  Recorder

	mu       sync.Mutex
	lru      *lru.Cache
	clearing bool
}

func newLRUCache(name string, size int, rec Recorder) *lruCache {
	c := &lruCache{name: name, rec: rec, lru: lru.New(size)}
	c.lru.OnEvicted = func(lru.Key, interface{}) {
		if !c.clearing {
			c.rec.RecordCacheEviction(c.name)
		}
	}
	return c
}

func (c *lruCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *lruCache) add(key string, v interface{}) {
	c.mu.Lock()
	c.lru.Add(key, v)
	n := c.lru.Len()
	c.mu.Unlock()
	c.rec.SetCacheSize(c.name, n)
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *lruCache) clear() {
	c.mu.Lock()
	c.clearing = true
	c.lru.Clear()
	c.clearing = false
	c.mu.Unlock()
	c.rec.SetCacheSize(c.name, 0)
}
