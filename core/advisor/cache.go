package advisor

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// singleflightGroup coalesces concurrent cache misses for the same key
// into one underlying provider call, preventing a thundering herd against
// the upstream AI when many requests share a cache key.
type singleflightGroup = singleflight.Group

// cache is an LRU with per-entry TTL, guarded by its own mutex. Cache
// misses never change correctness — it is purely an optimization over
// repeated identical advisor calls.
type cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

type cacheEntry struct {
	key     string
	verdict Verdict
	expires time.Time
}

func newCache(capacity int, ttl time.Duration) *cache {
	return &cache{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *cache) get(key string) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return Verdict{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.ll.Remove(el)
		delete(c.index, key)
		return Verdict{}, false
	}
	c.ll.MoveToFront(el)
	return entry.verdict, true
}

func (c *cache) set(key string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).verdict = v
		el.Value.(*cacheEntry).expires = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, verdict: v, expires: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.index[key] = el

	for c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of entries held, including expired entries that
// have not yet been looked up and removed.
func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
