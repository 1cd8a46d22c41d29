package elevation

import (
	"context"
	"sync"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// CachedProvider wraps a DEMProvider with an in-memory LRU cache keyed by the
// requested bounds. Cached rasters are shared; callers must not modify them.
type CachedProvider struct {
	inner   domain.DEMProvider
	cache   *lruCache[*raster.Raster]
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a DEM provider.
func NewCachedProvider(inner domain.DEMProvider, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache[*raster.Raster](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedProvider) Elevation(ctx context.Context, b orb.Bound) (*raster.Raster, error) {
	key := boundKey(b)
	if dem, ok := c.cache.get(key); ok {
		c.metrics.DEMCache.WithLabelValues("hit").Inc()
		return dem, nil
	}
	c.metrics.DEMCache.WithLabelValues("miss").Inc()
	dem, err := c.inner.Elevation(ctx, b)
	if err != nil {
		// Errors are not cached so coverage gaps can be retried.
		return nil, err
	}
	c.cache.put(key, dem)
	return dem, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
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

func (c *lruCache[V]) remove(e *entry[V]) {
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

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
