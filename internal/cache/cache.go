// Package cache provides the time-bounded, single-flight listing cache.
//
// Listings are keyed by (credential identity, normalized path) and shared
// read-only across sessions with the same identity. Concurrent misses for
// one key collapse into a single remote fetch; failed fetches are never
// stored and their error is delivered to every waiter.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/pathutil"
)

// DefaultTTL is applied when no TTL is configured.
const DefaultTTL = 300 * time.Second

// Key addresses one cached listing.
type Key uint64

// KeyFor derives the cache key for a credential identity and path.
func KeyFor(identity, path string) Key {
	return Key(xxhash.Sum64String(identity + "\x00" + pathutil.Normalize(path)))
}

// FetchFunc loads a listing from the remote service on cache miss.
type FetchFunc func(ctx context.Context) ([]models.Entry, error)

type record struct {
	identity  string
	path      string
	entries   []models.Entry
	fetchedAt time.Time
	ttl       time.Duration
}

func (r *record) live(now time.Time) bool {
	return now.Sub(r.fetchedAt) < r.ttl
}

// ListingCache is the shared listing store. Safe for concurrent use; unrelated
// keys never contend beyond the map lock.
type ListingCache struct {
	mu      sync.RWMutex
	records map[Key]*record
	group   singleflight.Group
	ttl     time.Duration

	now func() time.Time // injectable clock for tests
}

// New creates a cache with the given default TTL. Non-positive ttl falls
// back to DefaultTTL.
func New(ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{
		records: make(map[Key]*record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrFetch returns the live cached listing for (identity, path), or runs
// fetch exactly once per key across all concurrent callers and stores the
// result. The second return reports whether the result came from cache.
func (c *ListingCache) GetOrFetch(ctx context.Context, identity, path string, fetch FetchFunc) ([]models.Entry, bool, error) {
	return c.GetOrFetchTTL(ctx, identity, path, c.ttl, fetch)
}

// GetOrFetchTTL is GetOrFetch with a per-call TTL, used for listings whose
// freshness window differs from the configured default (search results).
func (c *ListingCache) GetOrFetchTTL(ctx context.Context, identity, path string, ttl time.Duration, fetch FetchFunc) ([]models.Entry, bool, error) {
	key := KeyFor(identity, path)

	if entries, ok := c.lookup(key); ok {
		return entries, true, nil
	}

	flightKey := fmt.Sprintf("%d", key)
	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		// A concurrent caller may have stored the listing between our
		// lookup and joining the flight.
		if entries, ok := c.lookup(key); ok {
			return entries, nil
		}

		entries, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.records[key] = &record{
			identity:  identity,
			path:      pathutil.Normalize(path),
			entries:   entries,
			fetchedAt: c.now(),
			ttl:       ttl,
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, false, err
	}
	return copyEntries(v.([]models.Entry)), false, nil
}

// lookup returns a copy of the live listing for key, expiring stale records.
func (c *ListingCache) lookup(key Key) ([]models.Entry, bool) {
	c.mu.RLock()
	rec, ok := c.records[key]
	if ok && rec.live(c.now()) {
		entries := copyEntries(rec.entries)
		c.mu.RUnlock()
		return entries, true
	}
	c.mu.RUnlock()

	if ok {
		c.mu.Lock()
		if rec, ok := c.records[key]; ok && !rec.live(c.now()) {
			delete(c.records, key)
		}
		c.mu.Unlock()
	}
	return nil, false
}

// Invalidate removes the cached listing for (identity, path).
func (c *ListingCache) Invalidate(identity, path string) {
	c.mu.Lock()
	delete(c.records, KeyFor(identity, path))
	c.mu.Unlock()
}

// InvalidateTree removes the cached listing for (identity, path) and every
// cached descendant listing. Mutating operations call this on the affected
// directory so the next listing re-fetches.
func (c *ListingCache) InvalidateTree(identity, path string) {
	norm := pathutil.Normalize(path)
	c.mu.Lock()
	for key, rec := range c.records {
		if rec.identity != identity {
			continue
		}
		if rec.path == norm || pathutil.IsDescendant(norm, rec.path) {
			delete(c.records, key)
		}
	}
	c.mu.Unlock()
}

// Remove deletes one record by key. Used for manual cache clearing.
func (c *ListingCache) Remove(key Key) {
	c.mu.Lock()
	delete(c.records, key)
	c.mu.Unlock()
}

// ClearIdentity drops every record belonging to a credential identity.
func (c *ListingCache) ClearIdentity(identity string) {
	c.mu.Lock()
	for key, rec := range c.records {
		if rec.identity == identity {
			delete(c.records, key)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of cached listings.
func (c *ListingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func copyEntries(in []models.Entry) []models.Entry {
	out := make([]models.Entry, len(in))
	copy(out, in)
	return out
}
