package membership

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Lister is the read surface the cache wraps.
type Lister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]authz.Membership, error)
}

type cachedEntry struct {
	memberships []authz.Membership
	fetchedAt   time.Time
}

// Cache serves membership lists with a bounded TTL, refreshed at the
// same cadence as the hierarchy snapshot.
type Cache struct {
	source           Lister
	ttl              time.Duration
	stalenessCeiling time.Duration
	now              func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]cachedEntry
}

// NewCache wraps source with a TTL cache. stalenessCeiling bounds how
// long a list may keep serving after refreshes start failing; past it
// lookups surface the refresh error and decisions fail closed.
func NewCache(source Lister, ttl, stalenessCeiling time.Duration) *Cache {
	if stalenessCeiling < ttl {
		stalenessCeiling = ttl
	}
	return &Cache{
		source:           source,
		ttl:              ttl,
		stalenessCeiling: stalenessCeiling,
		now:              time.Now,
		entries:          make(map[uuid.UUID]cachedEntry),
	}
}

// ListForUser returns the cached membership list, refreshing it when the
// TTL has lapsed. A failed refresh keeps serving the previous list while
// it is younger than the staleness ceiling.
func (c *Cache) ListForUser(ctx context.Context, userID uuid.UUID) ([]authz.Membership, error) {
	now := c.now()
	c.mu.Lock()
	entry, ok := c.entries[userID]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.memberships, nil
	}

	fresh, err := c.source.ListForUser(ctx, userID)
	if err != nil {
		if ok && now.Sub(entry.fetchedAt) < c.stalenessCeiling {
			return entry.memberships, nil
		}
		return nil, err
	}
	c.mu.Lock()
	c.entries[userID] = cachedEntry{memberships: fresh, fetchedAt: now}
	c.mu.Unlock()
	return fresh, nil
}

// Invalidate drops a user's cached list.
func (c *Cache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
