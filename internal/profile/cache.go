package profile

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
)

// Cache keeps loaded profiles by region. Each region is loaded at most once,
// even when many requests ask for it at the same time; failed loads are not
// kept. Entries only change through Invalidate and Reload.
//
// A load runs detached from the context of the request that started it, so
// a cancelled caller never fails the callers waiting on the same load.
type Cache struct {
	source  domain.ProfileSource
	metrics *observability.Metrics
	group   singleflight.Group

	mu       sync.RWMutex
	profiles map[string]*domain.RegionProfile
	// gen counts invalidations per region; a load started before one is
	// not stored.
	gen map[string]uint64
}

func NewCache(source domain.ProfileSource, metrics *observability.Metrics) *Cache {
	return &Cache{
		source:   source,
		metrics:  metrics,
		profiles: make(map[string]*domain.RegionProfile),
		gen:      make(map[string]uint64),
	}
}

// Profile returns the cached profile for region, loading it on first use.
func (c *Cache) Profile(ctx context.Context, region string) (*domain.RegionProfile, error) {
	if p, ok := c.cached(region); ok {
		c.count("hit")
		return p, nil
	}

	ch := c.group.DoChan(region, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), region)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.RegionProfile), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) cached(region string) (*domain.RegionProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[region]
	return p, ok
}

func (c *Cache) load(ctx context.Context, region string) (*domain.RegionProfile, error) {
	c.mu.RLock()
	p, ok := c.profiles[region]
	gen := c.gen[region]
	c.mu.RUnlock()
	if ok {
		c.count("hit")
		return p, nil
	}

	p, err := c.source.Profile(ctx, region)
	if err != nil {
		c.count("error")
		return nil, err
	}
	c.mu.Lock()
	if c.gen[region] == gen {
		c.profiles[region] = p
	}
	c.mu.Unlock()
	c.count("miss")
	return p, nil
}

// Invalidate drops region so the next lookup loads it again.
func (c *Cache) Invalidate(region string) {
	c.mu.Lock()
	delete(c.profiles, region)
	c.gen[region]++
	c.mu.Unlock()
	c.group.Forget(region)
}

// Reload loads region afresh and replaces the cached entry. The previous
// profile stays in place if the load fails.
func (c *Cache) Reload(ctx context.Context, region string) (*domain.RegionProfile, error) {
	p, err := c.source.Profile(ctx, region)
	if err != nil {
		c.count("error")
		return nil, err
	}
	c.mu.Lock()
	c.profiles[region] = p
	c.gen[region]++
	c.mu.Unlock()
	c.group.Forget(region)
	c.count("miss")
	return p, nil
}

// Regions lists the regions currently held, sorted.
func (c *Cache) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.profiles))
	for region := range c.profiles {
		out = append(out, region)
	}
	sort.Strings(out)
	return out
}

func (c *Cache) count(result string) {
	if c.metrics != nil {
		c.metrics.ProfileLookups.WithLabelValues(result).Inc()
	}
}
