package authz

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a resolved permission set may be served
// without a store read. Explicit invalidation remains the primary
// consistency mechanism; the TTL is a safety net.
const DefaultCacheTTL = 5 * time.Minute

const defaultCacheSize = 4096

// Source fills the cache on miss.
type Source interface {
	LoadPermissions(ctx context.Context, principalID int64) ([]Grant, []RoleName, error)
}

// Cache is the in-process permission cache. Entries are keyed by principal
// id only; tenant scoping happens at decision time, so one fill serves
// checks across every school the principal touches. Concurrent fills for
// the same principal are coalesced through singleflight.
type Cache struct {
	source Source
	ttl    time.Duration

	entries *lru.LRU[int64, PermissionSet]
	group   singleflight.Group

	// gens carries invalidation marks only for principals with a fill in
	// flight; entries are dropped once the last fill finishes so the map
	// stays bounded by fill concurrency, not by principal count.
	mu    sync.Mutex
	gens  map[int64]uint64
	fills map[int64]int

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

// NewCache constructs a cache over the given source. Non-positive ttl or
// size fall back to defaults.
func NewCache(source Source, ttl time.Duration, size int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: lru.NewLRU[int64, PermissionSet](size, nil, ttl),
		gens:    make(map[int64]uint64),
		fills:   make(map[int64]int),
		now:     time.Now,
	}
}

// Get returns the cached permission set for the principal, filling from
// the source on miss. Source errors propagate; they are never conflated
// with an empty permission set.
func (c *Cache) Get(ctx context.Context, principalID int64) (PermissionSet, error) {
	if set, ok := c.entries.Get(principalID); ok {
		c.hits.Add(1)
		return set, nil
	}
	c.misses.Add(1)

	key := strconv.FormatInt(principalID, 10)
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		if set, ok := c.entries.Get(principalID); ok {
			return set, nil
		}
		return c.fill(ctx, principalID)
	})
	select {
	case <-ctx.Done():
		return PermissionSet{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return PermissionSet{}, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

// Invalidate removes the principal's entry immediately. A fill racing with
// the invalidation will not reinstate the stale set: the generation bump
// makes its store result unstorable.
func (c *Cache) Invalidate(principalID int64) {
	c.mu.Lock()
	if c.fills[principalID] > 0 {
		c.gens[principalID]++
	}
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(principalID, 10))
	c.entries.Remove(principalID)
}

// Stats reports hit/miss counters and the current entry count.
func (c *Cache) Stats() (hits, misses int64, size int) {
	return c.hits.Load(), c.misses.Load(), c.entries.Len()
}

func (c *Cache) fill(ctx context.Context, principalID int64) (PermissionSet, error) {
	c.mu.Lock()
	gen := c.gens[principalID]
	c.fills[principalID]++
	c.mu.Unlock()
	defer c.releaseFill(principalID)

	grants, roles, err := c.source.LoadPermissions(ctx, principalID)
	if err != nil {
		return PermissionSet{}, err
	}
	set := PermissionSet{
		PrincipalID: principalID,
		Grants:      grants,
		Roles:       roles,
		ResolvedAt:  c.now(),
	}
	c.mu.Lock()
	if c.gens[principalID] == gen {
		c.entries.Add(principalID, set)
	}
	c.mu.Unlock()
	return set, nil
}

func (c *Cache) releaseFill(principalID int64) {
	c.mu.Lock()
	c.fills[principalID]--
	if c.fills[principalID] <= 0 {
		delete(c.fills, principalID)
		delete(c.gens, principalID)
	}
	c.mu.Unlock()
}
