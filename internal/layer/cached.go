package layer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twpayne/go-geos"
)

// CachedStore keeps recent candidate lists of an underlying store in an LRU.
// Entries live until evicted or invalidated.
type CachedStore struct {
	Store
	lru *lru.Cache[string, []Record]

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

type stamp struct{ epoch, gen uint64 }

// NewCachedStore wraps s with an LRU of size entries.
func NewCachedStore(s Store, size int) *CachedStore {
	if size <= 0 {
		size = 64
	}
	c, _ := lru.New[string, []Record](size)
	return &CachedStore{Store: s, lru: c, gens: make(map[string]uint64)}
}

// Unwrap returns the underlying store.
func (c *CachedStore) Unwrap() Store {
	return c.Store
}

func cacheKey(layer string, b *geos.Box2D) string {
	if b == nil {
		return layer + "|*"
	}
	return fmt.Sprintf("%s|%.7f,%.7f,%.7f,%.7f", layer, b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func (c *CachedStore) stamp(layer string) stamp {
	return stamp{c.epoch, c.gens[layer]}
}

func (c *CachedStore) Candidates(ctx context.Context, layer string, bounds *geos.Box2D) ([]Record, error) {
	key := cacheKey(layer, bounds)
	if recs, ok := c.lru.Get(key); ok {
		return recs, nil
	}

	c.mu.Lock()
	before := c.stamp(layer)
	c.mu.Unlock()

	recs, err := c.Store.Candidates(ctx, layer, bounds)
	if err != nil {
		return nil, err
	}

	// drop results that raced with an invalidation
	c.mu.Lock()
	if c.stamp(layer) == before {
		c.lru.Add(key, recs)
	}
	c.mu.Unlock()
	return recs, nil
}

// Invalidate drops every cached list of layer.
func (c *CachedStore) Invalidate(layer string) {
	c.mu.Lock()
	c.gens[layer]++
	c.mu.Unlock()

	prefix := layer + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// InvalidateAll empties the cache.
func (c *CachedStore) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of cached lists.
func (c *CachedStore) Len() int {
	return c.lru.Len()
}
