package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	principalCacheTTL  = 5 * time.Minute
	negativeCacheTTL   = 30 * time.Second
	maxCacheEntries    = 10000
	cacheCleanupPeriod = 60 * time.Second
)

// errCachedNotFound is returned for negative cache hits.
var errCachedNotFound = errors.New("api key not found (cached)")

type cachedPrincipal struct {
	principal string
	negative  bool
	expiresAt time.Time
}

// hashKey returns a hex-encoded SHA-256 hash of the API key so raw keys are
// never held in memory.
func hashKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}

// CachedPrincipalLookup wraps a PrincipalLookup with a bounded in-memory cache.
// Failed lookups are cached briefly so unknown keys cannot hammer the store;
// concurrent misses for the same key share one inner lookup.
type CachedPrincipalLookup struct {
	inner PrincipalLookup
	group singleflight.Group
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPrincipal
}

// NewCachedPrincipalLookup creates a caching wrapper around inner. ctx bounds
// the lifetime of the background eviction goroutine.
func NewCachedPrincipalLookup(ctx context.Context, inner PrincipalLookup) *CachedPrincipalLookup {
	c := &CachedPrincipalLookup{
		inner: inner,
		now:   time.Now,
		cache: make(map[string]cachedPrincipal),
	}
	go c.evictLoop(ctx)
	return c
}

func (c *CachedPrincipalLookup) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		}
	}
}

func (c *CachedPrincipalLookup) evictExpiredLocked() {
	now := c.now()
	for k, v := range c.cache {
		if !now.Before(v.expiresAt) {
			delete(c.cache, k)
		}
	}
}

func (c *CachedPrincipalLookup) store(hk string, entry cachedPrincipal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= maxCacheEntries {
		c.evictExpiredLocked()
		for k := range c.cache {
			if len(c.cache) < maxCacheEntries {
				break
			}
			delete(c.cache, k)
		}
	}
	c.cache[hk] = entry
}

// LookupPrincipal returns a cached principal or delegates to the inner lookup.
func (c *CachedPrincipalLookup) LookupPrincipal(ctx context.Context, apiKey string) (string, error) {
	hk := hashKey(apiKey)

	c.mu.RLock()
	entry, ok := c.cache[hk]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		if entry.negative {
			return "", errCachedNotFound
		}
		return entry.principal, nil
	}

	v, err, _ := c.group.Do(hk, func() (any, error) {
		principal, err := c.inner.LookupPrincipal(ctx, apiKey)
		if err != nil {
			c.store(hk, cachedPrincipal{negative: true, expiresAt: c.now().Add(negativeCacheTTL)})
			return "", err
		}

		c.store(hk, cachedPrincipal{principal: principal, expiresAt: c.now().Add(principalCacheTTL)})
		return principal, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil //nolint:forcetypeassert // the group only ever returns strings.
}
