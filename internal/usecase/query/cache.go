package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/zeebo/xxh3"

	"github.com/gridbase/gridbase/internal/domain/query"
)

// Cache is a TTL store of query results keyed by a stable hash of the
// query specification. It is the engine's only shared mutable state;
// every operation holds the mutex so a miss cannot interleave with an
// invalidate-then-populate for the same key and serve stale data.
type Cache struct {
	mu           sync.Mutex
	store        *gocache.Cache
	byCollection map[string]map[string]struct{}
	defaultTTL   time.Duration
}

// NewCache creates a query cache with a default TTL.
func NewCache(defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		store:        gocache.New(defaultTTL, 2*defaultTTL),
		byCollection: map[string]map[string]struct{}{},
		defaultTTL:   defaultTTL,
	}
}

// Key computes the stable cache key for a query: the xxh3 hash of its
// canonical JSON encoding. Structurally identical queries always hash
// to the same key.
func (c *Cache) Key(q query.Query) (string, error) {
	// Execution options do not affect the result set, so two queries
	// differing only in cache/timeout settings share an entry.
	normalized := q.Clone()
	normalized.Options = query.Options{}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("marshal query for cache key: %w", err)
	}
	return strconv.FormatUint(xxh3.Hash(b), 16), nil
}

// Get returns a cached result.
func (c *Cache) Get(key string) (query.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(key)
	if !ok {
		return query.Result{}, false
	}
	res, ok := v.(query.Result)
	return res, ok
}

// Put stores a result under a key, registered to its collection for
// invalidation. A non-positive ttl uses the default.
func (c *Cache) Put(collectionID, key string, res query.Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, res, ttl)
	keys, ok := c.byCollection[collectionID]
	if !ok {
		keys = map[string]struct{}{}
		c.byCollection[collectionID] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate drops every entry keyed to a collection. Writes and
// deletes against a collection must call this.
func (c *Cache) Invalidate(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byCollection[collectionID] {
		c.store.Delete(key)
	}
	delete(c.byCollection, collectionID)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ItemCount()
}
