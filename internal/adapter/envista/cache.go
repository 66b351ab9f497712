package envista

import (
	"context"
	"sync"

	"github.com/pacificaqd/airquality-etl/internal/observability"
)

// CachedMetadata wraps a MetadataFetcher with an in-memory LRU cache.
// Station identity and channel lists change rarely, while a pollutant walk
// touches every station once per scope.
type CachedMetadata struct {
	inner   MetadataFetcher
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedMetadata creates a cache decorator around a metadata fetcher.
func NewCachedMetadata(inner MetadataFetcher, maxEntries int, metrics *observability.Metrics) *CachedMetadata {
	return &CachedMetadata{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedMetadata) StationMetadata(ctx context.Context, stationID string) (StationMetadata, error) {
	if meta, ok := c.cache.get(stationID); ok {
		c.metrics.StationCacheOps.WithLabelValues("hit").Inc()
		return meta, nil
	}
	c.metrics.StationCacheOps.WithLabelValues("miss").Inc()

	meta, err := c.inner.StationMetadata(ctx, stationID)
	if err != nil {
		return meta, err
	}
	// Only cache resolvable stations so transient failures can be retried.
	if meta.StationID != "" {
		c.cache.put(stationID, meta)
	}
	return meta, nil
}

// lruCache is a simple thread-safe LRU cache for station metadata.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value StationMetadata
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (StationMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return StationMetadata{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value StationMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
