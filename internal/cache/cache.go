package cache

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Cache is the read-through response cache. Store failures are absorbed:
// a broken backend degrades hit rate, never availability.
type Cache struct {
	store  Store
	policy *Policy

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// New constructs a cache on the given store and policy.
func New(store Store, policy *Policy) *Cache {
	return &Cache{store: store, policy: policy}
}

// Policy exposes the TTL policy for route setup.
func (c *Cache) Policy() *Policy {
	return c.policy
}

// Lookup fetches an entry, counting hit or miss. A store error counts as
// a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (*Entry, bool) {
	entry, ok, errGet := c.store.Get(ctx, key)
	if errGet != nil {
		log.WithError(errGet).Warn("cache: lookup failed, treating as miss")
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry, true
}

// Save stores an entry under the policy TTL for its path. Errors are
// logged and dropped.
func (c *Cache) Save(ctx context.Context, key, path string, entry *Entry) {
	ttl := c.policy.TTL(path)
	if ttl <= 0 {
		return
	}
	if errSet := c.store.Set(ctx, key, entry, ttl); errSet != nil {
		log.WithError(errSet).Warn("cache: store failed, response not cached")
		return
	}
	c.sets.Add(1)
}

// InvalidatePattern removes every entry whose key contains the substring
// and returns the count removed.
func (c *Cache) InvalidatePattern(ctx context.Context, substr string) (int64, error) {
	if substr == "" {
		return 0, nil
	}
	return c.store.DeleteMatching(ctx, "*"+substr+"*")
}

// InvalidateCaller removes every entry cached for one caller.
func (c *Cache) InvalidateCaller(ctx context.Context, callerID string) (int64, error) {
	if callerID == "" {
		return 0, nil
	}
	return c.store.DeleteMatching(ctx, "*:"+callerID+":*")
}

// Flush removes all entries and returns the count removed.
func (c *Cache) Flush(ctx context.Context) (int64, error) {
	return c.store.Flush(ctx)
}

// Stats reports counters for the admin surface.
func (c *Cache) Stats(ctx context.Context) map[string]any {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	entries, errLen := c.store.Len(ctx)
	if errLen != nil {
		log.WithError(errLen).Warn("cache: entry count unavailable")
		entries = -1
	}
	return map[string]any{
		"hits":        hits,
		"misses":      misses,
		"stores":      c.sets.Load(),
		"hit_ratio":   ratio,
		"entries":     entries,
		"reported_at": time.Now().UTC().Format(time.RFC3339),
	}
}
